package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	apperrors "course-marketplace/errors"
	"course-marketplace/http/middleware"
	"course-marketplace/http/response"
	"course-marketplace/utils"
)

type progressRequest struct {
	LectureID string `json:"lectureId" validate:"required,resource_id"`
	Completed *bool  `json:"completed" validate:"required"`
}

// GetCourse returns a published course. Drafts are visible only to their
// tutor and admins.
// GET /api/courses/{id}
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	course, err := h.courses.GetCourse(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if !course.IsPublished {
		actor, _ := middleware.ActorFrom(r.Context())
		if !actor.IsAdmin() && !(actor.IsTutor() && actor.ID == course.TutorID) {
			response.Error(w, r, apperrors.NewNotFoundError("course not found"))
			return
		}
	}
	response.SuccessResponse(w, http.StatusOK, "Course retrieved", course)
}

// EnrollFree enrolls the caller in a free course.
// POST /api/courses/{id}/enroll
func (h *Handler) EnrollFree(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enrollments.EnrollFree(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusCreated, "Enrolled", e)
}

// GetEnrollment returns one enrollment to its student or an admin.
// GET /api/enrollments/{id}
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enrollments.GetEnrollment(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Enrollment retrieved", e)
}

// UpdateProgress marks a lecture complete or incomplete.
// PATCH /api/enrollments/{id}/progress
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req progressRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enrollments.UpdateProgress(r.Context(), actor, id, req.LectureID, *req.Completed)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Progress updated", e)
}

// DownloadCertificate streams the completion certificate PDF.
// GET /api/enrollments/{id}/certificate
func (h *Handler) DownloadCertificate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	path, err := h.enrollments.CertificateFile(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		response.Error(w, r, apperrors.E(apperrors.NotFound, "certificate file not found", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Error(w, r, apperrors.E(apperrors.Internal, "failed to read certificate", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
