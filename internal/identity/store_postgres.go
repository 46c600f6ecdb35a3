package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateUser(u User) (string, error) {
	if u.Username == "" {
		return "", fmt.Errorf("username is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleLearner
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, username, email, role, avatar, department, password_hash)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Username, u.Email, string(u.Role), u.Avatar, u.Department, u.PasswordHash,
	)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return u.ID, nil
}

func (s *PostgresStore) GetUser(id string) (*User, error) {
	return s.getUserByQuery(
		`SELECT id::text, name, username, email, role, avatar, department, password_hash
		 FROM users WHERE id = $1::uuid`,
		id,
	)
}

func (s *PostgresStore) GetUserByUsername(username string) (*User, error) {
	return s.getUserByQuery(
		`SELECT id::text, name, username, email, role, avatar, department, password_hash
		 FROM users WHERE username = $1`,
		username,
	)
}

func (s *PostgresStore) getUserByQuery(query, arg string) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var u User
	var role string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Name, &u.Username, &u.Email, &role, &u.Avatar, &u.Department, &u.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %s", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}
