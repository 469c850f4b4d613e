package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"floodline/internal/types"
)

// Validator wraps go-playground/validator with the platform's domain rules.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// data_source: value must be one of the known feed identifiers.
	_ = v.RegisterValidation("data_source", func(fl validator.FieldLevel) bool {
		return types.DataSource(fl.Field().String()).IsValid()
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct runs struct-tag validation and converts failures into a
// validation_missing_required_field AppError carrying per-field details.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"validation invoked on a non-struct value", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describeFailure(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request failed validation",
		err,
		map[string]any{"fields": fields},
	)
}

// fieldPath strips the top-level struct name from the validator namespace,
// leaving a dotted path the client can map onto the request body.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// describeFailure renders a human-readable message for one failed rule.
func describeFailure(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "url":
		return "must be a valid URL"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "data_source":
		return fmt.Sprintf("unknown data source; valid values: %v", types.KnownDataSources)
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}
