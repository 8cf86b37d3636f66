// Package validator wraps go-playground/validator so request DTOs report
// failures by their json field names.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
)

// Validator validates request structs.
type Validator struct {
	validate *validator.Validate
}

var (
	defaultValidator *Validator
	once             sync.Once
)

// New creates a Validator with json tag names and the custom rules registered.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("currency", validateCurrency); err != nil {
		panic(err)
	}
	return &Validator{validate: v}
}

// Default returns the shared validator instance.
func Default() *Validator {
	once.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// Validate returns nil or an apperrors validation error whose details map
// json field names to the failed rule.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.Internal(err)
	}

	details := make(map[string]interface{}, len(validationErrors))
	for _, fe := range validationErrors {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return apperrors.Validation(details)
}

// Struct validates with the shared instance.
func Struct(i interface{}) error {
	return Default().Validate(i)
}

// validateCurrency accepts three upper-case ASCII letters (ISO 4217 shape).
func validateCurrency(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if len(value) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if value[i] < 'A' || value[i] > 'Z' {
			return false
		}
	}
	return true
}
