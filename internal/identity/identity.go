// Package identity holds platform users and their roles.
package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Role decides what a user may see and administer.
type Role string

const (
	RoleLearner    Role = "LEARNER"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// Staff reports whether the role bypasses learner-facing gates.
func (r Role) Staff() bool {
	return r == RoleInstructor || r == RoleAdmin
}

// User is one platform account.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role"`
	Avatar       string `json:"avatar,omitempty"`
	Department   string `json:"department,omitempty"`
	PasswordHash string `json:"-"`
}

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// EnsureAdmin gets or creates the bootstrap admin account and returns
// its ID. An existing account with the username is left untouched.
func EnsureAdmin(store Store, username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("admin username is empty")
	}
	if u, err := store.GetUserByUsername(username); err == nil {
		return u.ID, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("seed admin: %w", err)
	}
	id, err := store.CreateUser(User{
		Name:         username,
		Username:     username,
		Role:         RoleAdmin,
		PasswordHash: hash,
	})
	if err != nil {
		return "", fmt.Errorf("seed admin: %w", err)
	}
	return id, nil
}

// Store persists user accounts.
type Store interface {
	CreateUser(u User) (string, error)
	GetUser(id string) (*User, error)
	GetUserByUsername(username string) (*User, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	users      map[string]*User
	byUsername map[string]string
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(u User) (string, error) {
	if u.Username == "" {
		return "", fmt.Errorf("username is required")
	}
	if u.Role == "" {
		u.Role = RoleLearner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[u.Username]; taken {
		return "", fmt.Errorf("username taken: %s", u.Username)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = &u
	s.byUsername[u.Username] = u.ID
	return u.ID, nil
}

func (s *MemoryStore) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	out := *s.users[id]
	return &out, nil
}
