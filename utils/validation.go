package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	apperrors "course-marketplace/errors"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	idRegex  = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("resource_id", validateResourceID)

	// Report fields by their JSON names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct runs the validate tags on data and folds every failure into
// one Invalid error.
func ValidateStruct(data interface{}) error {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.E(apperrors.Invalid, "validation failed", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		msgs = append(msgs, getErrorMessage(fieldErr))
	}
	return apperrors.NewInvalidParamsError(strings.Join(msgs, "; "))
}

// ValidateID checks a path or body identifier.
func ValidateID(name, value string) error {
	if !idRegex.MatchString(value) {
		return apperrors.NewInvalidParamsError(fmt.Sprintf("%s is invalid", name))
	}
	return nil
}

func getErrorMessage(err validator.FieldError) string {
	field := err.Field()
	switch err.Tag() {
	case "required":
		return field + " is required"
	case "resource_id":
		return field + " is invalid"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

func validateResourceID(fl validator.FieldLevel) bool {
	return idRegex.MatchString(fl.Field().String())
}
