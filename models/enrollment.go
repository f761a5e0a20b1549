package models

import (
	"math"
	"time"
)

type LectureProgress struct {
	LectureID   string     `json:"lecture"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Enrollment is the access grant for a student on a course. PaymentID is
// empty for free courses.
type Enrollment struct {
	ID                   string            `json:"id"`
	StudentID            string            `json:"student"`
	CourseID             string            `json:"course"`
	PaymentID            string            `json:"payment,omitempty"`
	Progress             []LectureProgress `json:"progress"`
	CompletionPercentage int               `json:"completionPercentage"`
	CertificateIssued    bool              `json:"certificateIssued"`
	CertificateIssuedAt  *time.Time        `json:"certificateIssuedAt,omitempty"`
	CertificatePath      string            `json:"-"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// SetLecture marks a lecture complete or incomplete, appending an entry if
// the lecture has not been seen before.
func (e *Enrollment) SetLecture(lectureID string, completed bool, at time.Time) {
	for i := range e.Progress {
		if e.Progress[i].LectureID != lectureID {
			continue
		}
		e.Progress[i].Completed = completed
		if completed {
			e.Progress[i].CompletedAt = &at
		} else {
			e.Progress[i].CompletedAt = nil
		}
		return
	}

	entry := LectureProgress{LectureID: lectureID, Completed: completed}
	if completed {
		entry.CompletedAt = &at
	}
	e.Progress = append(e.Progress, entry)
}

// Recompute derives CompletionPercentage from Progress. totalLectures is the
// course's lecture count; when it is smaller than the number of tracked
// entries the entries win. Reaching 100 issues the certificate; dropping
// below never revokes it. It returns true only on the call that issues.
func (e *Enrollment) Recompute(totalLectures int, at time.Time) bool {
	total := len(e.Progress)
	if totalLectures > total {
		total = totalLectures
	}

	done := 0
	for _, p := range e.Progress {
		if p.Completed {
			done++
		}
	}

	if total == 0 {
		e.CompletionPercentage = 0
	} else {
		e.CompletionPercentage = int(math.Round(100 * float64(done) / float64(total)))
	}

	if e.CompletionPercentage == 100 && !e.CertificateIssued {
		e.CertificateIssued = true
		e.CertificateIssuedAt = &at
		return true
	}
	return false
}
