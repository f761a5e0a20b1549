package services

import (
	"context"
	"time"

	"course-marketplace/db"
	apperrors "course-marketplace/errors"
	"course-marketplace/logger"
	"course-marketplace/models"

	"github.com/google/uuid"
)

// EnrollmentService owns the enrollment ledger. Enrollments are created only
// through enroll, which is reached from a completed payment or a free-course
// enroll.
type EnrollmentService struct {
	store    db.Store
	events   *Dispatcher
	notifier *Notifier
	certs    CertificateIssuer
	now      func() time.Time
	log      *logger.Logger
}

func NewEnrollmentService(store db.Store, events *Dispatcher, notifier *Notifier, certs CertificateIssuer) *EnrollmentService {
	return &EnrollmentService{
		store:    store,
		events:   events,
		notifier: notifier,
		certs:    certs,
		now:      time.Now,
		log:      logger.Default().With("component", "enrollments"),
	}
}

// enroll is the ledger transition: insert an empty enrollment and add the
// student to the course's enrolled set. tx must be transactional so both
// writes land together.
func (s *EnrollmentService) enroll(ctx context.Context, tx db.Store, studentID string, course *models.Course, paymentID string) (*models.Enrollment, error) {
	now := s.now().UTC()
	e := &models.Enrollment{
		ID:                   uuid.NewString(),
		StudentID:            studentID,
		CourseID:             course.ID,
		PaymentID:            paymentID,
		Progress:             []models.LectureProgress{},
		CompletionPercentage: 0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := tx.CreateEnrollment(ctx, e); err != nil {
		return nil, err
	}
	if err := tx.AddEnrolledStudent(ctx, course.ID, studentID); err != nil {
		return nil, err
	}
	return e, nil
}

// existing returns the pair's enrollment after taking the pair lock, so
// the answer holds until tx ends. A concurrent transaction enrolling the
// same pair is seen once it commits.
func (s *EnrollmentService) existing(ctx context.Context, tx db.Store, studentID, courseID string) (*models.Enrollment, error) {
	if err := tx.LockEnrollment(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	return tx.FindEnrollment(ctx, studentID, courseID)
}

// enrolled publishes the side effects of a committed enrollment.
func (s *EnrollmentService) enrolled(e *models.Enrollment, course *models.Course, email string, amount int64, currency string) {
	s.log.Info("Student %s enrolled in course %s (enrollment %s)", e.StudentID, e.CourseID, e.ID)
	s.events.PaymentEvent(models.PaymentEvent{
		Event:     models.EventEnrollmentCreated,
		PaymentID: e.PaymentID,
		StudentID: e.StudentID,
		CourseID:  e.CourseID,
		Amount:    amount,
	})
	s.notifier.EnrollmentConfirmed(email, course.Title, amount, currency)
}

// EnrollFree enrolls actor in a zero-price course without a payment.
func (s *EnrollmentService) EnrollFree(ctx context.Context, actor models.Actor, courseID string) (*models.Enrollment, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, apperrors.NewNotFoundError("course not found")
	}
	if !course.IsFree() {
		return nil, apperrors.NewInvalidParamsError("course is not free, use checkout to enroll")
	}

	var e *models.Enrollment
	err = s.store.InTx(ctx, func(tx db.Store) error {
		found, err := s.existing(ctx, tx, actor.ID, course.ID)
		if err != nil {
			return err
		}
		if found != nil {
			return apperrors.NewConflictError("already enrolled in this course")
		}
		e, err = s.enroll(ctx, tx, actor.ID, course, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.enrolled(e, course, actor.Email, 0, "")
	return e, nil
}

// GetEnrollment returns an enrollment to its student or an admin.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.StudentID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.NewForbiddenError("not your enrollment")
	}
	return e, nil
}

// UpdateProgress marks one lecture complete or incomplete and recomputes the
// completion percentage. The first time it reaches 100 the certificate is
// issued; it is never revoked.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, actor models.Actor, enrollmentID, lectureID string, completed bool) (*models.Enrollment, error) {
	var (
		e      *models.Enrollment
		course *models.Course
		issued bool
	)

	err := s.store.InTx(ctx, func(tx db.Store) error {
		var err error
		e, err = tx.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if e.StudentID != actor.ID {
			return apperrors.NewForbiddenError("not your enrollment")
		}

		course, err = tx.GetCourse(ctx, e.CourseID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		e.SetLecture(lectureID, completed, now)
		issued = e.Recompute(course.TotalLectures, now)
		e.UpdatedAt = now
		return tx.UpdateEnrollment(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	if issued {
		s.issueCertificate(ctx, e, course, actor.Email)
	}
	return e, nil
}

// issueCertificate renders the PDF for an enrollment whose certificate flag
// is already set. Rendering failures are logged; the flag stays set and the
// download endpoint renders again on demand.
func (s *EnrollmentService) issueCertificate(ctx context.Context, e *models.Enrollment, course *models.Course, email string) {
	s.events.PaymentEvent(models.PaymentEvent{
		Event:     models.EventCertificateIssued,
		StudentID: e.StudentID,
		CourseID:  e.CourseID,
	})

	path, err := s.render(ctx, e, course, email)
	if err != nil {
		s.log.Error("Failed to render certificate for enrollment %s: %v", e.ID, err)
		return
	}
	s.notifier.CertificateIssued(email, course.Title, path)
}

func (s *EnrollmentService) render(ctx context.Context, e *models.Enrollment, course *models.Course, recipient string) (string, error) {
	if s.certs == nil {
		return "", apperrors.NewServiceUnavailableError("certificate rendering is not configured")
	}
	path, err := s.certs.Issue(ctx, e, course, recipient)
	if err != nil {
		return "", err
	}
	e.CertificatePath = path
	e.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateEnrollment(ctx, e); err != nil {
		return "", err
	}
	return path, nil
}

// CertificateFile returns the certificate PDF path for an enrollment,
// rendering it if an earlier attempt failed.
func (s *EnrollmentService) CertificateFile(ctx context.Context, actor models.Actor, enrollmentID string) (string, error) {
	e, err := s.GetEnrollment(ctx, actor, enrollmentID)
	if err != nil {
		return "", err
	}
	if !e.CertificateIssued {
		return "", apperrors.NewInvalidParamsError("certificate has not been issued yet")
	}
	if e.CertificatePath != "" {
		return e.CertificatePath, nil
	}

	course, err := s.store.GetCourse(ctx, e.CourseID)
	if err != nil {
		return "", err
	}
	return s.render(ctx, e, course, actor.Email)
}
