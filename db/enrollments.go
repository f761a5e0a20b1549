package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	apperrors "course-marketplace/errors"
	"course-marketplace/models"
)

const enrollmentColumns = `id, student_id, course_id, payment_id, progress, completion_percentage,
	certificate_issued, certificate_issued_at, certificate_path, created_at, updated_at`

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		e         models.Enrollment
		paymentID sql.NullString
		progress  []byte
		issuedAt  sql.NullTime
	)
	err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &paymentID, &progress, &e.CompletionPercentage,
		&e.CertificateIssued, &issuedAt, &e.CertificatePath, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.PaymentID = paymentID.String
	e.CertificateIssuedAt = timePtr(issuedAt)
	e.Progress = []models.LectureProgress{}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &e.Progress); err != nil {
			return nil, apperrors.E(apperrors.Internal, "corrupt enrollment progress", err)
		}
	}
	return &e, nil
}

func marshalProgress(progress []models.LectureProgress) ([]byte, error) {
	if progress == nil {
		progress = []models.LectureProgress{}
	}
	return json.Marshal(progress)
}

// CreateEnrollment inserts e. A second enrollment for the same student and
// course fails with a Conflict error from the unique constraint.
func (s *PostgresStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	progress, err := marshalProgress(e.Progress)
	if err != nil {
		return apperrors.E(apperrors.Internal, "error encoding progress", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.StudentID, e.CourseID, nullString(e.PaymentID), progress, e.CompletionPercentage,
		e.CertificateIssued, nullTime(e.CertificateIssuedAt), e.CertificatePath, e.CreatedAt, e.UpdatedAt)
	if apperrors.IsKind(mapError(err, ""), apperrors.Conflict) {
		return apperrors.E(apperrors.Conflict, "student is already enrolled in this course", err)
	}
	return mapError(err, "")
}

func (s *PostgresStore) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`+s.lockClause(), id)
	e, err := scanEnrollment(row)
	if err != nil {
		return nil, mapError(err, "enrollment not found")
	}
	return e, nil
}

func (s *PostgresStore) FindEnrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "")
	}
	return e, nil
}

// LockEnrollment takes a transaction-scoped advisory lock keyed by the
// student and course pair.
func (s *PostgresStore) LockEnrollment(ctx context.Context, studentID, courseID string) error {
	if !s.tx {
		return apperrors.NewInternalServerError("enrollment lock taken outside a transaction")
	}
	_, err := s.q.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`, studentID, courseID)
	return mapError(err, "")
}

// UpdateEnrollment writes progress and certificate state. The certificate
// flag is OR-ed in SQL so a stale writer can never clear it.
func (s *PostgresStore) UpdateEnrollment(ctx context.Context, e *models.Enrollment) error {
	progress, err := marshalProgress(e.Progress)
	if err != nil {
		return apperrors.E(apperrors.Internal, "error encoding progress", err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE enrollments
		SET progress = $2, completion_percentage = $3,
		    certificate_issued = certificate_issued OR $4,
		    certificate_issued_at = COALESCE(certificate_issued_at, $5),
		    certificate_path = $6, updated_at = $7
		WHERE id = $1`,
		e.ID, progress, e.CompletionPercentage, e.CertificateIssued, nullTime(e.CertificateIssuedAt),
		e.CertificatePath, e.UpdatedAt)
	if err != nil {
		return mapError(err, "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("enrollment not found")
	}
	return nil
}

func (s *PostgresStore) DeleteEnrollment(ctx context.Context, studentID, courseID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return 0, mapError(err, "")
	}
	return res.RowsAffected()
}
