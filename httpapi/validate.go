package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError carries per-field failures for the response details.
type validationError struct {
	fields map[string]any
}

func (e *validationError) Error() string {
	return "request validation failed"
}

func (e *validationError) Unwrap() error { return phoneauth.ErrValidation }

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", phoneauth.ErrValidation)
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]any, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &validationError{fields: fields}
		}
		return fmt.Errorf("%w: %v", phoneauth.ErrValidation, err)
	}
	return nil
}
