// Package activity records what learners do so instructors can report
// on lesson views and quiz attempts.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntryType identifies what kind of action an Entry records.
type EntryType string

const (
	TypeLessonView  EntryType = "LESSON_VIEW"
	TypeQuizAttempt EntryType = "QUIZ_ATTEMPT"
)

// Entry is one recorded learner action. Score and Passed are set only
// for quiz attempts.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Score     *int      `json:"score,omitempty"`
	Passed    *bool     `json:"passed,omitempty"`
}

// Recorder persists and queries activity entries.
type Recorder interface {
	Record(e Entry) error
	// List returns a learner's entries newest first. An empty courseID
	// returns entries across all courses.
	List(userID, courseID string) ([]Entry, error)
}

func validate(e Entry) error {
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Type != TypeLessonView && e.Type != TypeQuizAttempt {
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	return nil
}

// NopRecorder ignores all entries.
type NopRecorder struct{}

func (NopRecorder) Record(Entry) error { return nil }

func (NopRecorder) List(string, string) ([]Entry, error) { return nil, nil }

// MemoryRecorder stores entries in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{entries: []Entry{}}
}

func (r *MemoryRecorder) Record(e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRecorder) List(userID, courseID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if e.UserID != userID {
			continue
		}
		if courseID != "" && e.CourseID != courseID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// PostgresRecorder inserts entries into the activity_log table.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

const dbTimeout = 5 * time.Second

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

func (r *PostgresRecorder) Record(e Entry) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("recorder pool is nil")
	}
	if err := validate(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	timestamp := e.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity_log (id, user_id, course_id, item_id, item_name, entry_type, score, passed, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, e.CourseID, e.ItemID, e.ItemName, string(e.Type), e.Score, e.Passed, timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}

	slog.Debug("activity recorded",
		"type", e.Type,
		"user_id", e.UserID,
		"item_id", e.ItemID,
	)
	return nil
}

func (r *PostgresRecorder) List(userID, courseID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	query := `SELECT id::text, user_id, course_id, item_id, item_name, entry_type, score, passed, created_at
		 FROM activity_log
		 WHERE user_id = $1`
	args := []any{userID}
	if courseID != "" {
		query += ` AND course_id = $2`
		args = append(args, courseID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var entryType string
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.ItemID, &e.ItemName, &entryType, &e.Score, &e.Passed, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		e.Type = EntryType(entryType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return out, nil
}

// Summary aggregates a learner's entries for the report view.
type Summary struct {
	LessonViews  int `json:"lesson_views"`
	QuizAttempts int `json:"quiz_attempts"`
	QuizPasses   int `json:"quiz_passes"`
	AverageScore int `json:"average_score"`
}

// Summarize folds a list of entries into per-learner totals. AverageScore
// is the rounded mean over quiz attempts, zero when there are none.
func Summarize(entries []Entry) Summary {
	var s Summary
	scoreSum := 0
	for _, e := range entries {
		switch e.Type {
		case TypeLessonView:
			s.LessonViews++
		case TypeQuizAttempt:
			s.QuizAttempts++
			if e.Score != nil {
				scoreSum += *e.Score
			}
			if e.Passed != nil && *e.Passed {
				s.QuizPasses++
			}
		}
	}
	if s.QuizAttempts > 0 {
		s.AverageScore = (scoreSum + s.QuizAttempts/2) / s.QuizAttempts
	}
	return s
}
