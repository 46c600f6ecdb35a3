package progress

import (
	"strings"
	"sync"
	"testing"

	"github.com/vinhtan/academy/internal/content"
)

// staticCatalog serves one two-level course for the manager tests.
type staticCatalog struct {
	courses map[string]content.Course
}

func (c staticCatalog) GetCourse(id string) (content.Course, bool) {
	course, ok := c.courses[id]
	return course, ok
}

func testCatalog() staticCatalog {
	return staticCatalog{courses: map[string]content.Course{
		"course_01": {
			ID:    "course_01",
			Title: "An toàn sinh học trong chăn nuôi",
			Topics: []content.Topic{
				{
					ID:    "topic_01",
					Title: "Nguyên tắc cơ bản",
					Lessons: []content.Lesson{
						{ID: "lesson_101", Title: "Giới thiệu", Type: content.LessonVideo, Level: 1},
						{ID: "lesson_102", Title: "Khử trùng chuồng trại", Type: content.LessonDocument, Level: 1},
						{ID: "lesson_201", Title: "Quy trình nâng cao", Type: content.LessonVideo, Level: 2},
					},
				},
			},
		},
		"course_02": {
			ID:    "course_02",
			Title: "Dinh dưỡng vật nuôi",
			Topics: []content.Topic{
				{
					ID:      "topic_01",
					Title:   "Khẩu phần ăn",
					Lessons: []content.Lesson{{ID: "lesson_301", Title: "Thức ăn thô", Type: content.LessonDocument, Level: 1}},
				},
			},
		},
	}}
}

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), testCatalog())
}

func TestEnroll_StartsAtLevelOne(t *testing.T) {
	m := newTestManager()

	e, err := m.Enroll("user_1", "course_01")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if e.Level != 1 {
		t.Errorf("Enroll() level = %d, want 1", e.Level)
	}
	if e.JoinedAt.IsZero() {
		t.Error("Enroll() joined_at is zero")
	}
}

func TestEnroll_Idempotent(t *testing.T) {
	m := newTestManager()

	first, err := m.Enroll("user_1", "course_01")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if err := m.CompleteLesson("user_1", "lesson_101"); err != nil {
		t.Fatalf("CompleteLesson() error = %v", err)
	}
	if err := m.CompleteLesson("user_1", "lesson_102"); err != nil {
		t.Fatalf("CompleteLesson() error = %v", err)
	}
	if _, err := m.AdvanceLevel("user_1", "course_01"); err != nil {
		t.Fatalf("AdvanceLevel() error = %v", err)
	}

	again, err := m.Enroll("user_1", "course_01")
	if err != nil {
		t.Fatalf("Enroll() second call error = %v", err)
	}
	if again.Level != 2 {
		t.Errorf("re-enroll level = %d, want 2 (existing enrollment kept)", again.Level)
	}
	if !again.JoinedAt.Equal(first.JoinedAt) {
		t.Errorf("re-enroll joined_at = %v, want original %v", again.JoinedAt, first.JoinedAt)
	}
}

func TestEnroll_UnknownCourse(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_99"); err == nil {
		t.Fatal("Enroll() with unknown course, want error")
	}
}

func TestCurrentLevel_DefaultsToOne(t *testing.T) {
	m := newTestManager()
	level, err := m.CurrentLevel("user_1", "course_01")
	if err != nil {
		t.Fatalf("CurrentLevel() error = %v", err)
	}
	if level != 1 {
		t.Errorf("CurrentLevel() unenrolled = %d, want 1", level)
	}
}

func TestIsLevelComplete(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	done, err := m.IsLevelComplete("user_1", "course_01", 1)
	if err != nil {
		t.Fatalf("IsLevelComplete() error = %v", err)
	}
	if done {
		t.Error("IsLevelComplete() with no lessons done = true, want false")
	}

	if err := m.CompleteLesson("user_1", "lesson_101"); err != nil {
		t.Fatalf("CompleteLesson() error = %v", err)
	}
	done, _ = m.IsLevelComplete("user_1", "course_01", 1)
	if done {
		t.Error("IsLevelComplete() with one of two lessons done = true, want false")
	}

	if err := m.CompleteLesson("user_1", "lesson_102"); err != nil {
		t.Fatalf("CompleteLesson() error = %v", err)
	}
	done, _ = m.IsLevelComplete("user_1", "course_01", 1)
	if !done {
		t.Error("IsLevelComplete() with all lessons done = false, want true")
	}
}

func TestIsLevelComplete_EmptyLevelNeverComplete(t *testing.T) {
	m := newTestManager()
	done, err := m.IsLevelComplete("user_1", "course_01", 3)
	if err != nil {
		t.Fatalf("IsLevelComplete() error = %v", err)
	}
	if done {
		t.Error("IsLevelComplete() for level without lessons = true, want false")
	}
}

func TestCanAccessLesson(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	tests := []struct {
		name     string
		lessonID string
		staff    bool
		want     bool
	}{
		{"level 1 lesson at level 1", "lesson_101", false, true},
		{"level 2 lesson locked", "lesson_201", false, false},
		{"staff bypasses the level gate", "lesson_201", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.CanAccessLesson("user_1", "course_01", tt.lessonID, tt.staff)
			if err != nil {
				t.Fatalf("CanAccessLesson() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAccessLesson() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanAccessLesson_UnknownLesson(t *testing.T) {
	m := newTestManager()
	if _, err := m.CanAccessLesson("user_1", "course_01", "lesson_999", false); err == nil {
		t.Fatal("CanAccessLesson() with unknown lesson, want error")
	}
}

func TestQuizGate(t *testing.T) {
	m := newTestManager()

	gate, err := m.QuizGate("user_1", "course_01")
	if err != nil {
		t.Fatalf("QuizGate() error = %v", err)
	}
	if gate.Allowed || gate.Reason != ReasonNotEnrolled {
		t.Errorf("QuizGate() unenrolled = %+v, want blocked with %s", gate, ReasonNotEnrolled)
	}

	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	gate, _ = m.QuizGate("user_1", "course_01")
	if gate.Allowed || gate.Reason != ReasonLevelIncomplete {
		t.Errorf("QuizGate() lessons pending = %+v, want blocked with %s", gate, ReasonLevelIncomplete)
	}

	m.CompleteLesson("user_1", "lesson_101")
	m.CompleteLesson("user_1", "lesson_102")
	gate, _ = m.QuizGate("user_1", "course_01")
	if !gate.Allowed || gate.Level != 1 {
		t.Errorf("QuizGate() all lessons done = %+v, want allowed at level 1", gate)
	}
}

func TestQuizGate_NoLessonsAtLevel(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	m.CompleteLesson("user_1", "lesson_101")
	m.CompleteLesson("user_1", "lesson_102")
	if _, err := m.AdvanceLevel("user_1", "course_01"); err != nil {
		t.Fatalf("AdvanceLevel() error = %v", err)
	}
	m.CompleteLesson("user_1", "lesson_201")
	if _, err := m.AdvanceLevel("user_1", "course_01"); err != nil {
		t.Fatalf("AdvanceLevel() error = %v", err)
	}

	// Level 3 has no lessons authored yet.
	gate, err := m.QuizGate("user_1", "course_01")
	if err != nil {
		t.Fatalf("QuizGate() error = %v", err)
	}
	if gate.Allowed || gate.Reason != ReasonNoLessons {
		t.Errorf("QuizGate() empty level = %+v, want blocked with %s", gate, ReasonNoLessons)
	}
}

func TestAdvanceLevel_RequiresCompletion(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	if _, err := m.AdvanceLevel("user_1", "course_01"); err == nil {
		t.Fatal("AdvanceLevel() with incomplete level, want error")
	} else if !strings.Contains(err.Error(), "not complete") {
		t.Errorf("AdvanceLevel() error = %v, want completion error", err)
	}
}

func TestAdvanceLevel_NotEnrolled(t *testing.T) {
	m := newTestManager()
	if _, err := m.AdvanceLevel("user_1", "course_01"); err == nil {
		t.Fatal("AdvanceLevel() unenrolled, want error")
	}
}

func TestAdvanceLevel_CapsAtMax(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, testCatalog())
	if _, err := m.Enroll("user_1", "course_02"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	m.CompleteLesson("user_1", "lesson_301")

	// Force the enrollment to the top level, then try to go past it.
	if err := store.SaveEnrollment("user_1", Enrollment{CourseID: "course_02", Level: content.MaxLevel}); err != nil {
		t.Fatalf("SaveEnrollment() error = %v", err)
	}
	level, err := m.AdvanceLevel("user_1", "course_02")
	if err != nil {
		t.Fatalf("AdvanceLevel() error = %v", err)
	}
	if level != content.MaxLevel {
		t.Errorf("AdvanceLevel() at top = %d, want %d", level, content.MaxLevel)
	}
}

// Concurrent advances for the same pair must move the level up once, not once
// per caller.
func TestAdvanceLevel_ConcurrentSingleStep(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_02"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	m.CompleteLesson("user_1", "lesson_301")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Losers fail the precondition re-check once level 2 has no
			// completed lessons; both outcomes are fine here.
			m.AdvanceLevel("user_1", "course_02")
		}()
	}
	wg.Wait()

	level, err := m.CurrentLevel("user_1", "course_02")
	if err != nil {
		t.Fatalf("CurrentLevel() error = %v", err)
	}
	if level != 2 {
		t.Errorf("level after concurrent advances = %d, want 2", level)
	}
}

func TestEnrollments_SortedByCourse(t *testing.T) {
	m := newTestManager()
	if _, err := m.Enroll("user_1", "course_02"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if _, err := m.Enroll("user_1", "course_01"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	list, err := m.Enrollments("user_1")
	if err != nil {
		t.Fatalf("Enrollments() error = %v", err)
	}
	if len(list) != 2 || list[0].CourseID != "course_01" || list[1].CourseID != "course_02" {
		t.Errorf("Enrollments() = %+v, want course_01 then course_02", list)
	}
}
