package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "course-marketplace/errors"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// DecodeJSONRequest decodes the JSON body of r into v. An empty body leaves
// v untouched.
func DecodeJSONRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.E(apperrors.Invalid, "invalid request body", err)
	}
	return nil
}

// DecodeAndValidate decodes the body into v and runs its validate tags.
func DecodeAndValidate(r *http.Request, v interface{}) error {
	if err := DecodeJSONRequest(r, v); err != nil {
		return err
	}
	return ValidateStruct(v)
}
