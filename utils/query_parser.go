package utils

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "course-marketplace/errors"
)

// ParseLimit reads the limit query parameter, falling back to def and
// capping at max.
func ParseLimit(r *http.Request, def, max int) (int, error) {
	str := r.URL.Query().Get("limit")
	if str == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(str)
	if err != nil || limit <= 0 {
		return 0, apperrors.NewInvalidParamsError(fmt.Sprintf("invalid limit %q", str))
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
