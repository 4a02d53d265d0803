package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"class-booking/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment inserts a pending payment
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}

	query := `
		INSERT INTO payments (user_id, class_id, amount, currency, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		payment.UserID, payment.ClassID, payment.Amount, payment.Currency, payment.PaymentMethod, payment.Status)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	return s.getPayment(ctx, s.db, "p.id = $1", id)
}

// GetPaymentBySessionID retrieves a payment by its checkout session reference
func (s *Store) GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return s.getPayment(ctx, s.db, "p.checkout_session_id = $1", sessionID)
}

func (s *Store) getPayment(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q, &payment,
		"SELECT "+selectList("p", paymentColumns)+" FROM payments p WHERE "+where, arg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, mapInvalidID(err, "payment", fmt.Sprint(arg))
	}
	return &payment, nil
}

// SetCheckoutSession records the provider session on a payment
func (s *Store) SetCheckoutSession(ctx context.Context, paymentID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET checkout_session_id = $1, updated_at = NOW() WHERE id = $2",
		sessionID, paymentID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	return nil
}

// MarkPaymentSucceeded moves a pending payment to succeeded and records the intent.
// On ErrInvalidTransition the payment is returned as it currently stands.
func (s *Store) MarkPaymentSucceeded(ctx context.Context, paymentID, intentID string) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payment, err := s.transitionPayment(ctx, tx, paymentID, models.PaymentStatusSucceeded, &intentID)
	if err != nil {
		return payment, err
	}
	return payment, tx.Commit()
}

// MarkPaymentFailed moves a pending payment to failed
func (s *Store) MarkPaymentFailed(ctx context.Context, paymentID string) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payment, err := s.transitionPayment(ctx, tx, paymentID, models.PaymentStatusFailed, nil)
	if err != nil {
		return nil, err
	}
	return payment, tx.Commit()
}

// RefundPayment moves a succeeded payment to refunded and cancels its enrollment.
// The returned enrollment is nil when the payment never produced one.
func (s *Store) RefundPayment(ctx context.Context, paymentID string) (*models.Payment, *models.Enrollment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	payment, err := s.transitionPayment(ctx, tx, paymentID, models.PaymentStatusRefunded, nil)
	if err != nil {
		return nil, nil, err
	}

	var enrollment models.Enrollment
	err = tx.GetContext(ctx, &enrollment, `
		UPDATE enrollments SET status = $1
		WHERE payment_id = $2 AND status <> $1
		RETURNING `+selectList("enrollments", enrollmentColumns),
		models.EnrollmentStatusCancelled, paymentID)
	switch {
	case err == sql.ErrNoRows:
		if err := tx.Commit(); err != nil {
			return nil, nil, err
		}
		return payment, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("failed to cancel enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return payment, &enrollment, nil
}

// transitionPayment locks the row and applies a status change allowed by the payment graph
func (s *Store) transitionPayment(ctx context.Context, tx *sqlx.Tx, paymentID string, to models.PaymentStatus, intentID *string) (*models.Payment, error) {
	var current models.Payment
	err := tx.GetContext(ctx, &current,
		"SELECT "+selectList("p", paymentColumns)+" FROM payments p WHERE p.id = $1 FOR UPDATE", paymentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, mapInvalidID(err, "payment", paymentID)
	}

	if !models.CanTransition(current.Status, to) {
		return &current, fmt.Errorf("%w: payment %s is %s, cannot become %s",
			ErrInvalidTransition, paymentID, current.Status, to)
	}

	var updated models.Payment
	err = tx.GetContext(ctx, &updated, `
		UPDATE payments SET status = $1, payment_intent_id = COALESCE($2, payment_intent_id), updated_at = NOW()
		WHERE id = $3
		RETURNING `+selectList("payments", paymentColumns),
		to, intentID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return &updated, nil
}

// ListPayments retrieves every payment with its payer and class, newest first
func (s *Store) ListPayments(ctx context.Context) ([]models.PaymentDetail, error) {
	query := "SELECT " + selectList("p", paymentColumns) + ", " +
		nestedList("u", "user", []string{"email", "full_name"}) + ", " +
		nestedList("c", "class", []string{"title", "category"}) + `
		FROM payments p
		JOIN users u ON u.id = p.user_id
		JOIN classes c ON c.id = p.class_id
		ORDER BY p.created_at DESC`

	payments := []models.PaymentDetail{}
	if err := s.db.SelectContext(ctx, &payments, query); err != nil {
		return nil, err
	}
	return payments, nil
}

// ListStalePendingPayments retrieves pending payments created before the cutoff
func (s *Store) ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT "+selectList("p", paymentColumns)+
			" FROM payments p WHERE p.status = $1 AND p.created_at < $2 ORDER BY p.created_at LIMIT $3",
		models.PaymentStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
