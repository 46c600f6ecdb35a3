// Package progress tracks per-course enrollment levels and lesson
// completion, and gates lesson and quiz access on them.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/vinhtan/academy/internal/content"
)

// Enrollment is a learner's membership in one course. Level moves only
// upward, one step at a time, and never past content.MaxLevel.
type Enrollment struct {
	CourseID string    `json:"course_id"`
	Level    int       `json:"level"`
	JoinedAt time.Time `json:"joined_at"`
}

// Gate reason codes returned when quiz access is blocked.
const (
	ReasonNotEnrolled     = "NOT_ENROLLED"
	ReasonNoLessons       = "NO_LESSONS"
	ReasonLevelIncomplete = "LEVEL_INCOMPLETE"
)

// Gate is the outcome of a quiz access check. When Allowed is false,
// Reason carries one of the Reason* codes for the caller to surface.
type Gate struct {
	Allowed bool   `json:"allowed"`
	Level   int    `json:"level"`
	Reason  string `json:"reason,omitempty"`
}

// Catalog is the slice of the content layer the manager needs.
type Catalog interface {
	GetCourse(id string) (content.Course, bool)
}

// Manager owns enrollment and completion state for all learners.
type Manager struct {
	store   Store
	catalog Catalog

	// Serializes level read-modify-write per (learner, course) pair.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a progression manager over the given store.
func NewManager(store Store, catalog Catalog) *Manager {
	return &Manager{
		store:   store,
		catalog: catalog,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) pairLock(userID, courseID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	key := userID + "\x00" + courseID
	lk, ok := m.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[key] = lk
	}
	return lk
}

// Enroll joins the learner to a course at level 1. Enrolling again is a
// no-op that returns the existing enrollment unchanged.
func (m *Manager) Enroll(userID, courseID string) (Enrollment, error) {
	if _, ok := m.catalog.GetCourse(courseID); !ok {
		return Enrollment{}, fmt.Errorf("enroll: unknown course %s", courseID)
	}

	lk := m.pairLock(userID, courseID)
	lk.Lock()
	defer lk.Unlock()

	if e, ok, err := m.store.GetEnrollment(userID, courseID); err != nil {
		return Enrollment{}, fmt.Errorf("enroll: %w", err)
	} else if ok {
		return *e, nil
	}

	e := Enrollment{
		CourseID: courseID,
		Level:    content.MinLevel,
		JoinedAt: time.Now(),
	}
	if err := m.store.SaveEnrollment(userID, e); err != nil {
		return Enrollment{}, fmt.Errorf("enroll: %w", err)
	}
	return e, nil
}

// Enrollments returns everything the learner is enrolled in.
func (m *Manager) Enrollments(userID string) ([]Enrollment, error) {
	return m.store.ListEnrollments(userID)
}

// CurrentLevel returns the learner's level in a course. An unenrolled
// learner is treated as level 1 so catalog views can render a default.
func (m *Manager) CurrentLevel(userID, courseID string) (int, error) {
	e, ok, err := m.store.GetEnrollment(userID, courseID)
	if err != nil {
		return 0, fmt.Errorf("current level: %w", err)
	}
	if !ok {
		return content.MinLevel, nil
	}
	return e.Level, nil
}

// CompleteLesson marks a lesson done for the learner. Completing an
// already-completed lesson is a no-op.
func (m *Manager) CompleteLesson(userID, lessonID string) error {
	if err := m.store.SaveCompletedLesson(userID, lessonID); err != nil {
		return fmt.Errorf("complete lesson: %w", err)
	}
	return nil
}

// IsLevelComplete reports whether the learner has completed every lesson
// of the given level in the course. A level with no lessons at all is
// never complete.
func (m *Manager) IsLevelComplete(userID, courseID string, level int) (bool, error) {
	course, ok := m.catalog.GetCourse(courseID)
	if !ok {
		return false, fmt.Errorf("level complete: unknown course %s", courseID)
	}

	lessons := course.LessonsAtLevel(level)
	if len(lessons) == 0 {
		return false, nil
	}

	done, err := m.store.CompletedLessons(userID)
	if err != nil {
		return false, fmt.Errorf("level complete: %w", err)
	}
	for _, l := range lessons {
		if !done[l.ID] {
			return false, nil
		}
	}
	return true, nil
}

// CanAccessLesson reports whether the learner may open a lesson. Staff
// see everything; learners see lessons at or below their current level.
func (m *Manager) CanAccessLesson(userID, courseID, lessonID string, staff bool) (bool, error) {
	course, ok := m.catalog.GetCourse(courseID)
	if !ok {
		return false, fmt.Errorf("access lesson: unknown course %s", courseID)
	}
	lesson, ok := course.FindLesson(lessonID)
	if !ok {
		return false, fmt.Errorf("access lesson: unknown lesson %s in course %s", lessonID, courseID)
	}

	if staff {
		return true, nil
	}

	level, err := m.CurrentLevel(userID, courseID)
	if err != nil {
		return false, err
	}
	return lesson.Level <= level, nil
}

// QuizGate checks whether the learner may start the quiz for their
// current level in the course. A blocked gate is not an error; the
// reason code tells the caller what to show.
func (m *Manager) QuizGate(userID, courseID string) (Gate, error) {
	course, ok := m.catalog.GetCourse(courseID)
	if !ok {
		return Gate{}, fmt.Errorf("quiz gate: unknown course %s", courseID)
	}

	e, enrolled, err := m.store.GetEnrollment(userID, courseID)
	if err != nil {
		return Gate{}, fmt.Errorf("quiz gate: %w", err)
	}
	if !enrolled {
		return Gate{Level: content.MinLevel, Reason: ReasonNotEnrolled}, nil
	}

	if len(course.LessonsAtLevel(e.Level)) == 0 {
		return Gate{Level: e.Level, Reason: ReasonNoLessons}, nil
	}

	done, err := m.IsLevelComplete(userID, courseID, e.Level)
	if err != nil {
		return Gate{}, err
	}
	if !done {
		return Gate{Level: e.Level, Reason: ReasonLevelIncomplete}, nil
	}
	return Gate{Allowed: true, Level: e.Level}, nil
}

// AdvanceLevel moves the learner up one level in the course after a
// passed quiz. At the top level it is a no-op returning the current
// level. The lesson-completion precondition is re-checked under the
// pair lock so concurrent submissions cannot double-advance.
func (m *Manager) AdvanceLevel(userID, courseID string) (int, error) {
	lk := m.pairLock(userID, courseID)
	lk.Lock()
	defer lk.Unlock()

	e, ok, err := m.store.GetEnrollment(userID, courseID)
	if err != nil {
		return 0, fmt.Errorf("advance level: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("advance level: not enrolled in %s", courseID)
	}
	if e.Level >= content.MaxLevel {
		return e.Level, nil
	}

	complete, err := m.IsLevelComplete(userID, courseID, e.Level)
	if err != nil {
		return 0, err
	}
	if !complete {
		return 0, fmt.Errorf("advance level: level %d of %s not complete", e.Level, courseID)
	}

	next := *e
	next.Level++
	if err := m.store.SaveEnrollment(userID, next); err != nil {
		return 0, fmt.Errorf("advance level: %w", err)
	}
	return next.Level, nil
}
