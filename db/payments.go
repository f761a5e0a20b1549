package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"course-marketplace/models"
)

const paymentColumns = `id, razorpay_order_id, razorpay_payment_id, razorpay_signature, razorpay_refund_id,
	student_id, course_id, tutor_id, amount, currency, status, failure_reason,
	expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.RazorpayOrderID, &p.RazorpayPaymentID, &p.RazorpaySignature, &p.RazorpayRefundID,
		&p.StudentID, &p.CourseID, &p.TutorID, &p.Amount, &p.Currency, &p.Status, &p.FailureReason,
		&p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.RazorpayOrderID, p.RazorpayPaymentID, p.RazorpaySignature, p.RazorpayRefundID,
		p.StudentID, p.CourseID, p.TutorID, p.Amount, p.Currency, p.Status, p.FailureReason,
		p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	return mapError(err, "")
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`+s.lockClause(), id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapError(err, "payment not found")
	}
	return p, nil
}

func (s *PostgresStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE razorpay_order_id = $1`+s.lockClause(), orderID)
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapError(err, "payment not found")
	}
	return p, nil
}

// UpdatePayment writes the mutable columns of p.
func (s *PostgresStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments
		SET razorpay_payment_id = $2, razorpay_signature = $3, razorpay_refund_id = $4,
		    status = $5, failure_reason = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.RazorpayPaymentID, p.RazorpaySignature, p.RazorpayRefundID, p.Status, p.FailureReason, p.UpdatedAt)
	if err != nil {
		return mapError(err, "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError(sql.ErrNoRows, "payment not found")
	}
	return nil
}

// ListPayments returns matching payments newest first.
func (s *PostgresStore) ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.TutorID != "" {
		add("tutor_id = $%d", f.TutorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "")
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, mapError(err, "")
		}
		payments = append(payments, *p)
	}
	return payments, mapError(rows.Err(), "")
}

// ExpirePendingPayments moves every pending payment past its expiry to
// expired in one statement and returns the number of rows changed.
func (s *PostgresStore) ExpirePendingPayments(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2`,
		models.PaymentStatusExpired, now, models.PaymentStatusPending)
	if err != nil {
		return 0, mapError(err, "")
	}
	return res.RowsAffected()
}
