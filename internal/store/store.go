package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a constraint
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned for a payment status change outside the allowed graph
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

var classColumns = []string{
	"id", "title", "description", "long_description", "price", "duration_hours",
	"instructor_name", "instructor_bio", "max_students", "meeting_link", "meeting_type",
	"category", "level", "is_active", "created_at", "updated_at",
}

var scheduleColumns = []string{
	"id", "class_id", "start_date", "start_time", "end_time", "timezone", "is_full", "enrolled_count",
}

var paymentColumns = []string{
	"id", "user_id", "class_id", "amount", "currency", "payment_method", "checkout_session_id",
	"payment_intent_id", "paypal_order_id", "status", "created_at", "updated_at",
}

var enrollmentColumns = []string{
	"id", "user_id", "class_id", "schedule_id", "payment_id", "status", "created_at",
}

var userColumns = []string{"id", "email", "full_name", "role", "created_at"}

// selectList renders "a.col1, a.col2" for a table alias
func selectList(alias string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}

// nestedList renders `a.col AS "prefix.col"` so sqlx can fill a nested struct
func nestedList(alias, prefix string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf(`%s.%s AS "%s.%s"`, alias, c, prefix, c)
	}
	return strings.Join(parts, ", ")
}

// mapError converts constraint violations into store sentinels
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}
