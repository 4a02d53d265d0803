package store

import (
	"context"
	"database/sql"
	"fmt"

	"class-booking/internal/models"
)

// GetUserByID retrieves a user profile
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT "+selectList("u", userColumns)+" FROM users u WHERE u.id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, mapInvalidID(err, "user", id)
	}
	return &user, nil
}

// UpsertUser creates or refreshes a user profile
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name
		RETURNING role, created_at`

	row := s.db.QueryRowxContext(ctx, query, user.ID, user.Email, user.FullName, user.Role)
	if err := row.Scan(&user.Role, &user.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}
