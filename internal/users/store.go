// Package users persists accounts and checks credentials.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kjstillabower/weather-gateway/internal/models"
)

var (
	ErrDuplicateEmail   = errors.New("email already exists")
	ErrNotFound         = errors.New("user not found")
	ErrPasswordMismatch = errors.New("password mismatched")
	ErrDatabase         = errors.New("database error")
)

// Store is the SQLite-backed credential store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies pending migrations.
// ":memory:" is pinned to one connection so every query sees the same database.
func Open(ctx context.Context, path string, maxConns int, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDatabase, path, err)
	}
	if path == ":memory:" || maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: configure: %w", ErrDatabase, err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrDatabase, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Create inserts a user. A second account for the same email fails with ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, name, email, passwordHash string) (models.User, error) {
	createdAt := s.now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, fmt.Errorf("%w: insert user: %w", ErrDatabase, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("%w: last insert id: %w", ErrDatabase, err)
	}
	return models.User{ID: id, Name: name, Email: email, CreatedAt: createdAt}, nil
}

// PasswordHash returns the stored hash for email, or ErrNotFound.
func (s *Store) PasswordHash(ctx context.Context, email string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE email = ? COLLATE NOCASE`, email,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: select user: %w", ErrDatabase, err)
	}
	return hash, nil
}

// Count returns the number of stored users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count users: %w", ErrDatabase, err)
	}
	return n, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrDatabase, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
