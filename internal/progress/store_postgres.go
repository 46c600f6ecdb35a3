package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveEnrollment(userID string, e Enrollment) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	joinedAt := e.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrollments (user_id, course_id, level, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, course_id)
		 DO UPDATE SET level = EXCLUDED.level`,
		userID, e.CourseID, e.Level, joinedAt,
	)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEnrollment(userID, courseID string) (*Enrollment, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var e Enrollment
	err := s.pool.QueryRow(ctx,
		`SELECT course_id, level, joined_at
		 FROM enrollments
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&e.CourseID, &e.Level, &e.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get enrollment: %w", err)
	}
	return &e, true, nil
}

func (s *PostgresStore) ListEnrollments(userID string) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT course_id, level, joined_at
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY course_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.CourseID, &e.Level, &e.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveCompletedLesson(userID, lessonID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO completed_lessons (user_id, lesson_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, lesson_id) DO NOTHING`,
		userID, lessonID,
	)
	if err != nil {
		return fmt.Errorf("save completed lesson: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompletedLessons(userID string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT lesson_id FROM completed_lessons WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("completed lessons: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed lesson: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completed lessons: %w", err)
	}
	return out, nil
}
