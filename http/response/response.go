package response

import (
	"encoding/json"
	"net/http"

	apperrors "course-marketplace/errors"
	"course-marketplace/logger"
)

// StandardResponse represents the standard API response structure
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse sends a success response with given status code, message, and data
func SuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	SendJSON(w, statusCode, StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response with given status code and error message
func ErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	SendJSON(w, statusCode, StandardResponse{
		Status: "error",
		Error:  errorMsg,
	})
}

// Error writes err using its kind for the status code. Internal and
// unclassified errors are logged and never shown to the client verbatim.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		logger.Debug("%s %s rejected (%s): %v", r.Method, r.URL.Path, kind, err)
	}

	ErrorResponse(w, status, apperrors.MessageOf(err))
}

// SendJSON encodes and sends a JSON response
func SendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
