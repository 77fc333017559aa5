package core

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"tripwise/internal/types"
)

// ValidationError describes a single failed field constraint.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates the outcome of validating a struct. Warnings do
// not fail validation; they are surfaced in response metadata.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether validation passed (no errors; warnings permitted).
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator to register domain-specific rules.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
//
// Custom tags:
//   - plan_name: the field must be a recognized subscription plan identifier
//     (free, basic, premium, premium_plus).
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Registration only fails for a nil function or empty tag, neither of
	// which can happen here.
	_ = v.RegisterValidation("plan_name", validatePlanName)

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the struct and returns a *types.AppError describing
// all failed constraints, or nil when the struct is valid. The error's code is
// taken from the first failure; the full list is attached under the
// "validation_errors" details key.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates the struct and returns the full
// ValidationResult instead of collapsing it into an error. Handlers that want
// to attach warnings to an otherwise successful response use this form.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// An InvalidValidationError means the argument was not a struct.
		// That is a programming error, not client input.
		v.logger.Error("validator received non-struct value",
			slog.String("error", err.Error()),
		)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "validation could not be performed",
		})
		return result
	}

	for _, fe := range validationErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag()),
			Message: fieldErrorMessage(fe),
		})
	}
	return result
}

// validatePlanName implements the plan_name tag. Empty values pass so the tag
// composes with optional fields; pair with required to forbid empty.
func validatePlanName(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return types.IsKnownPlan(types.Plan(value))
}

// tagToErrorCode maps a validation tag to the API error code returned for
// failures of that tag.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required":
		return string(types.ErrCodeValidationMissingField)
	case "email":
		return string(types.ErrCodeValidationInvalidEmail)
	case "plan_name":
		return string(types.ErrCodeValidationInvalidPlan)
	case "latitude", "longitude":
		return string(types.ErrCodeValidationInvalidCoords)
	case "gt", "gte", "lt", "lte", "min", "max":
		return string(types.ErrCodeValidationInvalidAmount)
	default:
		return string(types.ErrCodeValidationMissingField)
	}
}

// fieldErrorMessage renders a human-readable message for a field failure.
func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "plan_name":
		return fmt.Sprintf("%s must be one of: free, basic, premium, premium_plus", fe.Field())
	case "latitude":
		return fmt.Sprintf("%s must be a valid latitude", fe.Field())
	case "longitude":
		return fmt.Sprintf("%s must be a valid longitude", fe.Field())
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s is out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation on %s", fe.Field(), fe.Tag())
	}
}
