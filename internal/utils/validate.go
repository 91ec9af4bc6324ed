package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/example/autolead/internal/pricing"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the wizard's custom rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("loan_term", func(fl validator.FieldLevel) bool {
			return pricing.IsAllowedTerm(int(fl.Field().Int()))
		})
		_ = v.RegisterValidation("step5", func(fl validator.FieldLevel) bool {
			return fl.Field().Int()%pricing.DownPaymentPercentageStep == 0
		})
		_ = v.RegisterValidation("country_code", func(fl validator.FieldLevel) bool {
			return IsCountryCode(NormalizeCountryCode(fl.Field().String()))
		})
		_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
			return len(NormalizePhone(fl.Field().String())) == 10
		})
		_ = v.RegisterValidation("condition", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "excellent", "good", "fair":
				return true
			}
			return false
		})
		validate = v
	})
	return validate
}

// FieldErrors maps a JSON field name to a human readable message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateStruct runs the validator and converts failures into FieldErrors.
// It returns nil when s is valid.
func ValidateStruct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		out[fieldPath(fe)] = fieldMessage(fe)
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "loan_term":
		return "must be 12, 24, 36 or 48 months"
	case "step5":
		return "must be a multiple of 5"
	case "country_code":
		return "unsupported country code"
	case "phone10":
		return "must have exactly 10 digits"
	case "condition":
		return "must be excellent, good or fair"
	}
	return "is invalid"
}
