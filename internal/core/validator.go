package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"payflow/internal/types"
)

// Validator wraps go-playground/validator with domain-specific rules so that
// request handlers validate payloads declaratively via struct tags.
//
// Custom tags registered:
//   - plan_type:      one of the known plan tiers
//   - billing_period: "monthly" or "yearly"
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers the custom domain tags.
// Registration errors are impossible for non-empty tag names; the returned
// error from RegisterValidation is ignored for that reason.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	_ = v.RegisterValidation("plan_type", func(fl validator.FieldLevel) bool {
		switch types.PlanType(fl.Field().String()) {
		case types.PlanStarter, types.PlanProfessional, types.PlanEnterprise:
			return true
		}
		return false
	})

	_ = v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		switch types.BillingPeriod(fl.Field().String()) {
		case types.BillingMonthly, types.BillingYearly:
			return true
		}
		return false
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its validation tags.
// On failure it returns a *types.AppError whose Details map each offending
// field (JSON-style snake_case name) to a short description of the rule it
// violated. Field values are never echoed back in the error.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the argument was not a struct. This is a
		// programming error, not a client error.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation target is not a struct", err)
	}

	details := make(map[string]any, len(validationErrs))
	var code types.ErrorCode = types.ErrCodeValidationMissingField
	for _, fe := range validationErrs {
		field := toSnakeCase(fe.Field())
		details[field] = ruleDescription(fe)
		if fe.Tag() != "required" {
			code = codeForTag(fe.Tag())
		}
	}

	return types.NewAppErrorWithDetails(code, "request validation failed", err, details)
}

// codeForTag maps a failed validation tag to the client-facing error code.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "plan_type":
		return types.ErrCodeValidationInvalidPlan
	case "billing_period":
		return types.ErrCodeValidationInvalidPeriod
	default:
		return types.ErrCodeValidationMissingField
	}
}

// ruleDescription produces a short human-readable reason for a failed rule.
func ruleDescription(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "plan_type":
		return "must be one of: starter, professional, enterprise"
	case "billing_period":
		return "must be one of: monthly, yearly"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	default:
		return "failed rule: " + fe.Tag()
	}
}

// toSnakeCase converts a Go exported field name (UserID, PlanType) to the
// snake_case form used in JSON payloads (user_id, plan_type).
func toSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			// Insert an underscore before an upper-case letter unless it is
			// the first rune or continues an acronym (e.g. the "D" in "ID").
			if i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
