package handlers

import (
	"context"
	"net/http"
	"time"

	"course-marketplace/http/response"
)

const healthTimeout = 3 * time.Second

// Health reports the state of each dependency.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			if c.Critical {
				status = http.StatusServiceUnavailable
			}
			continue
		}
		checks[c.Name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	response.SendJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
