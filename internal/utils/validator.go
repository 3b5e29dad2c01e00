package utils

import (
	"strings"

	"github.com/go-playground/validator"
)

// NewValidator returns a validator with the custom rules used by the models.
// notblank rejects empty and whitespace-only strings.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}
