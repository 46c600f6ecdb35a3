// Package server exposes the platform over HTTP and a live quiz
// websocket, and coordinates the domain packages behind them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinhtan/academy/internal/activity"
	"github.com/vinhtan/academy/internal/certificate"
	"github.com/vinhtan/academy/internal/content"
	"github.com/vinhtan/academy/internal/identity"
	"github.com/vinhtan/academy/internal/platform/cache"
	"github.com/vinhtan/academy/internal/progress"
	"github.com/vinhtan/academy/internal/quiz"
)

// SessionEvent is pushed to live listeners when a quiz session moves on
// its own (countdown advance or auto-submit).
type SessionEvent struct {
	Kind   string // "advance" or "submitted"
	Index  int
	Result quiz.Result
}

// QuizSession is one learner's live quiz run.
type QuizSession struct {
	ID        string
	UserID    string
	CourseID  string
	Level     int
	CreatedAt time.Time
	Quiz      *quiz.Session

	events chan SessionEvent
}

// Events exposes the session's advance/submit notifications for the
// websocket channel. Events are dropped if nobody is listening.
func (qs *QuizSession) Events() <-chan SessionEvent { return qs.events }

func (qs *QuizSession) push(ev SessionEvent) {
	select {
	case qs.events <- ev:
	default:
	}
}

// Service wires the catalog, progression, quiz engine, activity log and
// certificates together behind the HTTP surface.
type Service struct {
	catalog  *content.Loader
	progress *progress.Manager
	activity activity.Recorder
	users    identity.Store
	cache    *cache.Cache // nil when caching is disabled

	passingScore       int
	minutesPerQuestion int

	mu       sync.Mutex
	sessions map[string]*QuizSession
	certs    map[string][]certificate.Certificate
}

// NewService creates the coordination service. cache may be nil.
func NewService(catalog *content.Loader, prog *progress.Manager, rec activity.Recorder, users identity.Store, c *cache.Cache, passingScore, minutesPerQuestion int) *Service {
	return &Service{
		catalog:            catalog,
		progress:           prog,
		activity:           rec,
		users:              users,
		cache:              c,
		passingScore:       passingScore,
		minutesPerQuestion: minutesPerQuestion,
		sessions:           make(map[string]*QuizSession),
		certs:              make(map[string][]certificate.Certificate),
	}
}

// Catalog returns every course, read through the cache when one is
// configured. Cache failures fall back to the loader.
func (s *Service) Catalog(ctx context.Context) []content.Course {
	if s.cache != nil {
		var cached []content.Course
		if hit, err := s.cache.GetCatalog(ctx, &cached); err != nil {
			slog.Warn("catalog cache read failed", "error", err)
		} else if hit {
			return cached
		}
	}

	courses := s.catalog.AllCourses()
	if s.cache != nil {
		if err := s.cache.SetCatalog(ctx, courses); err != nil {
			slog.Warn("catalog cache write failed", "error", err)
		}
	}
	return courses
}

func (s *Service) isStaff(userID string) bool {
	if s.users == nil {
		return false
	}
	u, err := s.users.GetUser(userID)
	if err != nil {
		return false
	}
	return u.Role.Staff()
}

// Enroll joins the learner to a course.
func (s *Service) Enroll(userID, courseID string) (progress.Enrollment, error) {
	return s.progress.Enroll(userID, courseID)
}

// ViewLesson returns a lesson the learner may open and records the view.
func (s *Service) ViewLesson(userID, courseID, lessonID string) (content.Lesson, error) {
	ok, err := s.progress.CanAccessLesson(userID, courseID, lessonID, s.isStaff(userID))
	if err != nil {
		return content.Lesson{}, err
	}
	if !ok {
		return content.Lesson{}, fmt.Errorf("lesson %s is locked at your level", lessonID)
	}

	course, _ := s.catalog.GetCourse(courseID)
	lesson, _ := course.FindLesson(lessonID)

	if err := s.activity.Record(activity.Entry{
		UserID:   userID,
		CourseID: courseID,
		ItemID:   lesson.ID,
		ItemName: lesson.Title,
		Type:     activity.TypeLessonView,
	}); err != nil {
		slog.Warn("recording lesson view failed", "error", err, "lesson_id", lessonID)
	}
	return lesson, nil
}

// CompleteLesson marks a lesson done after checking the learner may see it.
func (s *Service) CompleteLesson(userID, courseID, lessonID string) error {
	ok, err := s.progress.CanAccessLesson(userID, courseID, lessonID, s.isStaff(userID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lesson %s is locked at your level", lessonID)
	}
	return s.progress.CompleteLesson(userID, lessonID)
}

// settings returns the platform settings, read through the cache when
// one is configured. Cache failures fall back to the loader.
func (s *Service) settings(ctx context.Context) content.Settings {
	if s.cache != nil {
		var cached content.Settings
		if hit, err := s.cache.GetSettings(ctx, &cached); err != nil {
			slog.Warn("settings cache read failed", "error", err)
		} else if hit {
			return cached
		}
	}

	settings := s.catalog.Settings()
	if s.cache != nil {
		if err := s.cache.SetSettings(ctx, settings); err != nil {
			slog.Warn("settings cache write failed", "error", err)
		}
	}
	return settings
}

// sessionTTL is how long a finished session stays around for review
// before the registry sweeps it.
const sessionTTL = time.Hour

// sweepSessionsLocked drops finished sessions past their review window.
// In-progress sessions are never swept; the countdown always drives them
// to a terminal state.
func (s *Service) sweepSessionsLocked() {
	for id, qs := range s.sessions {
		if qs.Quiz.State() != quiz.StateInProgress && time.Since(qs.CreatedAt) > sessionTTL {
			delete(s.sessions, id)
		}
	}
}

// StartQuiz opens a quiz session for the learner's current level. A
// blocked gate comes back with Allowed=false and no session. A learner
// has at most one attempt in flight per course: starting again while one
// is in progress returns the existing session.
func (s *Service) StartQuiz(ctx context.Context, userID, courseID string) (*QuizSession, progress.Gate, error) {
	gate, err := s.progress.QuizGate(userID, courseID)
	if err != nil {
		return nil, progress.Gate{}, err
	}
	if !gate.Allowed {
		return nil, gate, nil
	}

	questions := s.catalog.QuestionsFor(courseID, gate.Level)
	if len(questions) == 0 {
		gate.Allowed = false
		gate.Reason = progress.ReasonNoLessons
		return nil, gate, nil
	}

	minutes := s.settings(ctx).MinutesFor(gate.Level, s.minutesPerQuestion)

	qs := &QuizSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Level:     gate.Level,
		CreatedAt: time.Now(),
		events:    make(chan SessionEvent, 8),
	}

	sess, err := quiz.NewSession(quiz.SessionConfig{
		Questions:       questions,
		TimePerQuestion: time.Duration(minutes) * time.Minute,
		PassingScore:    s.passingScore,
		OnSubmitted: func(res quiz.Result) {
			s.onQuizSubmitted(qs, res)
			qs.push(SessionEvent{Kind: "submitted", Result: res})
		},
		OnAdvance: func(index int) {
			qs.push(SessionEvent{Kind: "advance", Index: index})
		},
	})
	if err != nil {
		return nil, progress.Gate{}, err
	}
	qs.Quiz = sess

	s.mu.Lock()
	s.sweepSessionsLocked()
	for _, existing := range s.sessions {
		if existing.UserID == userID && existing.CourseID == courseID &&
			existing.Quiz.State() == quiz.StateInProgress {
			s.mu.Unlock()
			return existing, gate, nil
		}
	}
	s.sessions[qs.ID] = qs
	s.mu.Unlock()

	if err := sess.Start(); err != nil {
		return nil, progress.Gate{}, err
	}
	return qs, gate, nil
}

// onQuizSubmitted records the attempt and, on a pass, moves the learner
// up a level and issues a certificate.
func (s *Service) onQuizSubmitted(qs *QuizSession, res quiz.Result) {
	score := res.Score
	passed := res.Passed
	if err := s.activity.Record(activity.Entry{
		UserID:   qs.UserID,
		CourseID: qs.CourseID,
		ItemID:   fmt.Sprintf("quiz_l%d", qs.Level),
		ItemName: fmt.Sprintf("Level %d Quiz", qs.Level),
		Type:     activity.TypeQuizAttempt,
		Score:    &score,
		Passed:   &passed,
	}); err != nil {
		slog.Warn("recording quiz attempt failed", "error", err, "user_id", qs.UserID)
	}

	if !res.Passed {
		return
	}

	if _, err := s.progress.AdvanceLevel(qs.UserID, qs.CourseID); err != nil {
		slog.Warn("level advance failed", "error", err, "user_id", qs.UserID, "course_id", qs.CourseID)
	}

	course, _ := s.catalog.GetCourse(qs.CourseID)
	student := qs.UserID
	if s.users != nil {
		if u, err := s.users.GetUser(qs.UserID); err == nil && u.Name != "" {
			student = u.Name
		}
	}
	cert, err := certificate.Issue(student, course.Title, qs.Level)
	if err != nil {
		slog.Warn("certificate issue failed", "error", err, "user_id", qs.UserID)
		return
	}

	s.mu.Lock()
	s.certs[qs.UserID] = append(s.certs[qs.UserID], cert)
	s.mu.Unlock()

	slog.Info("certificate issued",
		"certificate_id", cert.ID,
		"user_id", qs.UserID,
		"course_id", qs.CourseID,
		"level", qs.Level,
	)
}

// Session looks up a live quiz session owned by the given learner.
func (s *Service) Session(id, userID string) (*QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs, ok := s.sessions[id]
	if !ok || qs.UserID != userID {
		return nil, fmt.Errorf("quiz session not found: %s", id)
	}
	return qs, nil
}

// ReleaseSession drops a finished session from the registry.
func (s *Service) ReleaseSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Certificates returns everything issued to the learner, newest last.
func (s *Service) Certificates(userID string) []certificate.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]certificate.Certificate{}, s.certs[userID]...)
}

// errForbidden marks operations the caller's role does not allow.
var errForbidden = errors.New("forbidden")

// Authenticate checks a username/password pair and returns the account
// with its hash cleared.
func (s *Service) Authenticate(username, password string) (identity.User, error) {
	u, err := s.users.GetUserByUsername(username)
	if err != nil || !identity.CheckPassword(u.PasswordHash, password) {
		return identity.User{}, fmt.Errorf("invalid username or password")
	}
	out := *u
	out.PasswordHash = ""
	return out, nil
}

// CreateUser registers a new account. Only staff may create accounts,
// and only an admin may create staff accounts.
func (s *Service) CreateUser(callerID string, u identity.User, password string) (identity.User, error) {
	caller, err := s.users.GetUser(callerID)
	if err != nil || !caller.Role.Staff() {
		return identity.User{}, fmt.Errorf("create user: %w", errForbidden)
	}
	if u.Role.Staff() && caller.Role != identity.RoleAdmin {
		return identity.User{}, fmt.Errorf("create staff account: %w", errForbidden)
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return identity.User{}, err
	}
	u.PasswordHash = hash

	id, err := s.users.CreateUser(u)
	if err != nil {
		return identity.User{}, err
	}
	u.ID = id
	u.PasswordHash = ""
	if u.Role == "" {
		u.Role = identity.RoleLearner
	}
	return u, nil
}

// User returns an account profile. Learners may only see themselves.
func (s *Service) User(callerID, subjectID string) (identity.User, error) {
	if callerID != subjectID && !s.isStaff(callerID) {
		return identity.User{}, fmt.Errorf("view user: %w", errForbidden)
	}
	u, err := s.users.GetUser(subjectID)
	if err != nil {
		return identity.User{}, err
	}
	out := *u
	out.PasswordHash = ""
	return out, nil
}

// ImportQuestions validates and adds an authored question batch. Only
// staff may import.
func (s *Service) ImportQuestions(userID string, data []byte) (int, error) {
	if !s.isStaff(userID) {
		return 0, fmt.Errorf("question import: %w", errForbidden)
	}

	courseID, questions, err := content.ImportQuestions(data)
	if err != nil {
		return 0, err
	}
	if _, ok := s.catalog.GetCourse(courseID); !ok {
		return 0, fmt.Errorf("import: unknown course %s", courseID)
	}

	s.catalog.AddQuestions(courseID, questions)
	slog.Info("questions imported", "course_id", courseID, "count", len(questions))
	return len(questions), nil
}

// Report returns activity entries and their summary for subjectID, or
// for the caller when subjectID is empty. Only staff may report on
// other learners.
func (s *Service) Report(callerID, subjectID, courseID string) ([]activity.Entry, activity.Summary, error) {
	if subjectID == "" {
		subjectID = callerID
	}
	if subjectID != callerID && !s.isStaff(callerID) {
		return nil, activity.Summary{}, fmt.Errorf("activity report: %w", errForbidden)
	}

	entries, err := s.activity.List(subjectID, courseID)
	if err != nil {
		return nil, activity.Summary{}, err
	}
	return entries, activity.Summarize(entries), nil
}
