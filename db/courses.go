package db

import (
	"context"

	"course-marketplace/models"
)

func (s *PostgresStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var c models.Course
	err := s.q.QueryRowContext(ctx, `
		SELECT id, title, tutor_id, price, is_published, total_lectures, created_at, updated_at
		FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Title, &c.TutorID, &c.Price, &c.IsPublished, &c.TotalLectures, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "course not found")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT student_id FROM course_enrolled_students WHERE course_id = $1 ORDER BY added_at`, id)
	if err != nil {
		return nil, mapError(err, "")
	}
	defer rows.Close()

	c.EnrolledStudents = []string{}
	for rows.Next() {
		var studentID string
		if err := rows.Scan(&studentID); err != nil {
			return nil, mapError(err, "")
		}
		c.EnrolledStudents = append(c.EnrolledStudents, studentID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "")
	}
	return &c, nil
}

// AddEnrolledStudent is an add-to-set: adding an existing member is a no-op.
func (s *PostgresStore) AddEnrolledStudent(ctx context.Context, courseID, studentID string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO course_enrolled_students (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING`, courseID, studentID)
	return mapError(err, "")
}

func (s *PostgresStore) RemoveEnrolledStudent(ctx context.Context, courseID, studentID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM course_enrolled_students WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	return mapError(err, "")
}

// ReconcileEnrolledStudents rebuilds the enrolled-students cache from the
// enrollments table and reports how many members it added and removed.
func (s *PostgresStore) ReconcileEnrolledStudents(ctx context.Context) (int64, int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO course_enrolled_students (course_id, student_id)
		SELECT course_id, student_id FROM enrollments
		ON CONFLICT (course_id, student_id) DO NOTHING`)
	if err != nil {
		return 0, 0, mapError(err, "")
	}
	added, _ := res.RowsAffected()

	res, err = s.q.ExecContext(ctx, `
		DELETE FROM course_enrolled_students ces
		WHERE NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.course_id = ces.course_id AND e.student_id = ces.student_id
		)`)
	if err != nil {
		return added, 0, mapError(err, "")
	}
	removed, _ := res.RowsAffected()

	return added, removed, nil
}
