package progress

import (
	"sort"
	"sync"
)

// Store persists enrollments and completed lessons.
type Store interface {
	SaveEnrollment(userID string, e Enrollment) error
	GetEnrollment(userID, courseID string) (*Enrollment, bool, error)
	ListEnrollments(userID string) ([]Enrollment, error)
	SaveCompletedLesson(userID, lessonID string) error
	CompletedLessons(userID string) (map[string]bool, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	enrollments map[string]map[string]Enrollment // userID -> courseID -> enrollment
	completed   map[string]map[string]bool       // userID -> lessonID -> done
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enrollments: make(map[string]map[string]Enrollment),
		completed:   make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) SaveEnrollment(userID string, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCourse, ok := s.enrollments[userID]
	if !ok {
		byCourse = make(map[string]Enrollment)
		s.enrollments[userID] = byCourse
	}
	byCourse[e.CourseID] = e
	return nil
}

func (s *MemoryStore) GetEnrollment(userID, courseID string) (*Enrollment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[userID][courseID]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (s *MemoryStore) ListEnrollments(userID string) ([]Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Enrollment, 0, len(s.enrollments[userID]))
	for _, e := range s.enrollments[userID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *MemoryStore) SaveCompletedLesson(userID, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, ok := s.completed[userID]
	if !ok {
		done = make(map[string]bool)
		s.completed[userID] = done
	}
	done[lessonID] = true
	return nil
}

func (s *MemoryStore) CompletedLessons(userID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.completed[userID]))
	for id := range s.completed[userID] {
		out[id] = true
	}
	return out, nil
}
