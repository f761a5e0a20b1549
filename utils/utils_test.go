package utils

import (
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "course-marketplace/errors"
)

type progressBody struct {
	LectureID string `json:"lectureId" validate:"required,resource_id"`
	Completed *bool  `json:"completed" validate:"required"`
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"lectureId":"lec-1","completed":true}`, ""},
		{"completed false is present", `{"lectureId":"lec-1","completed":false}`, ""},
		{"missing completed", `{"lectureId":"lec-1"}`, "completed is required"},
		{"empty body", ``, "lectureId is required"},
		{"bad id", `{"lectureId":"lec 1!","completed":true}`, "lectureId is invalid"},
		{"malformed", `{"lectureId":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("PATCH", "/", strings.NewReader(tt.body))
			var body progressBody
			err := DecodeAndValidate(r, &body)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DecodeAndValidate() error = %v", err)
				}
				return
			}
			if apperrors.KindOf(err) != apperrors.Invalid {
				t.Fatalf("kind = %v, want Invalid (err: %v)", apperrors.KindOf(err), err)
			}
			if msg := apperrors.MessageOf(err); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "0b6f7c1e-6a0e-4e0b-9a39-5d0c7b1a9f10", "course_1"} {
		if err := ValidateID("id", id); err != nil {
			t.Errorf("ValidateID(%q) error = %v", id, err)
		}
	}
	for _, id := range []string{"", "a b", "x/../y", strings.Repeat("a", 65)} {
		if err := ValidateID("id", id); apperrors.KindOf(err) != apperrors.Invalid {
			t.Errorf("ValidateID(%q) = %v, want Invalid", id, err)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"?limit=10", 10, false},
		{"?limit=9999", 500, false},
		{"?limit=0", 0, true},
		{"?limit=abc", 0, true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/dlq/messages"+tt.query, nil)
		got, err := ParseLimit(r, DefaultDLQLimit, MaxDLQLimit)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLimit(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
