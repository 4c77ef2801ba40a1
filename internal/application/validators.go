package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-cohort/internal/domain"
)

// NewValidator returns a validator with the engine's custom tags
// registered: semver and steptype.
// NewValidator returns an error if any validator registration fails.
func NewValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return nil, fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("steptype", validateStepType); err != nil {
		return nil, fmt.Errorf("failed to register steptype validator: %w", err)
	}
	return v, nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateStepType accepts the known step types.
func validateStepType(fl validator.FieldLevel) bool {
	switch domain.StepType(fl.Field().String()) {
	case domain.StepTypeInitialReview, domain.StepTypeInterview, domain.StepTypeTechnical, domain.StepTypeFinalReview:
		return true
	}
	return false
}

// toValidationError flattens validator field errors into a
// domain.ValidationError with one message per failing field. Errors that
// are not validator.ValidationErrors are returned unchanged.
func toValidationError(entity string, err error) error {
	verr := domain.NewValidationError(entity)
	if !appendFieldErrors(verr, "", err) {
		return err
	}
	return verr
}

// appendFieldErrors adds one message per validator field error to verr,
// each prefixed with prefix. It reports false when err does not hold
// validator field errors.
func appendFieldErrors(verr *domain.ValidationError, prefix string, err error) bool {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return false
	}
	for _, fe := range fieldErrs {
		// Drop the root struct name: "EngineConfig.Defaults.MaxScore" -> "Defaults.MaxScore".
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			verr.AddErrorf("%s%s failed %s=%s", prefix, field, fe.Tag(), fe.Param())
		} else {
			verr.AddErrorf("%s%s failed %s", prefix, field, fe.Tag())
		}
	}
	return true
}
