package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "course-marketplace/errors"
	"course-marketplace/models"

	"github.com/lib/pq"
)

// Store is the persistence surface of the payment and enrollment flows.
// Lookups of a single row return a NotFound application error when the row
// is missing; FindEnrollment returns (nil, nil) instead so callers can test
// for existence.
type Store interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error)
	ExpirePendingPayments(ctx context.Context, now time.Time) (int64, error)

	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	FindEnrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	// LockEnrollment blocks until no other transaction is deciding an
	// enrollment for the same student and course. The lock is released when
	// the surrounding transaction ends; it must be called inside InTx.
	LockEnrollment(ctx context.Context, studentID, courseID string) error
	UpdateEnrollment(ctx context.Context, e *models.Enrollment) error
	DeleteEnrollment(ctx context.Context, studentID, courseID string) (int64, error)

	AddEnrolledStudent(ctx context.Context, courseID, studentID string) error
	RemoveEnrolledStudent(ctx context.Context, courseID, studentID string) error
	ReconcileEnrolledStudents(ctx context.Context) (added, removed int64, err error)

	// InTx runs fn against a Store bound to one transaction. Calls nested
	// inside fn join the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore implements Store on database/sql with lib/pq.
type PostgresStore struct {
	db *sql.DB
	q  querier
	tx bool
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{db: conn, q: conn}
}

// Ping is used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.E(apperrors.Internal, "error starting transaction", err)
	}

	if err := fn(&PostgresStore{db: s.db, q: tx, tx: true}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.E(apperrors.Internal, "error committing transaction", err)
	}
	return nil
}

// lockClause takes row locks when reading inside a transaction so two
// verifications of the same order serialize.
func (s *PostgresStore) lockClause() string {
	if s.tx {
		return " FOR UPDATE"
	}
	return ""
}

// mapError converts driver errors into application errors.
func mapError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(notFoundMsg)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperrors.E(apperrors.Conflict, "record already exists", err)
	}
	if apperrors.KindOf(err) != apperrors.Other {
		return err
	}
	return apperrors.E(apperrors.Internal, "database error", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
