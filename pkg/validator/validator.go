// Package validator provides struct validation utilities with custom
// validators for the scan domain.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
)

// cronParser matches the grammar the scheduler uses.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("scan_type", validateScanType)
	_ = v.RegisterValidation("config_status", validateConfigStatus)
	_ = v.RegisterValidation("concurrency_policy", validateConcurrencyPolicy)
	_ = v.RegisterValidation("trigger_type", validateTriggerType)
	_ = v.RegisterValidation("run_status", validateRunStatus)
	_ = v.RegisterValidation("severity", validateSeverity)
	_ = v.RegisterValidation("issue_status", validateIssueStatus)
	_ = v.RegisterValidation("cron_expr", validateCronExpr)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if stderrors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	var fieldErrors validator.ValidationErrors
	if stderrors.As(err, &fieldErrors) {
		errs := make(ValidationErrors, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			errs = append(errs, ValidationError{
				Field:   toSnakeCase(fe.Field()),
				Message: messageForTag(fe),
			})
		}
		return errs
	}

	return err
}

func validateScanType(fl validator.FieldLevel) bool {
	return scanconfig.ScanType(fl.Field().String()).IsValid()
}

func validateConfigStatus(fl validator.FieldLevel) bool {
	return scanconfig.Status(fl.Field().String()).IsValid()
}

func validateConcurrencyPolicy(fl validator.FieldLevel) bool {
	return scanconfig.ConcurrencyPolicy(fl.Field().String()).IsValid()
}

func validateTriggerType(fl validator.FieldLevel) bool {
	return scanrun.TriggerType(fl.Field().String()).IsValid()
}

func validateRunStatus(fl validator.FieldLevel) bool {
	return scanrun.Status(fl.Field().String()).IsValid()
}

func validateSeverity(fl validator.FieldLevel) bool {
	return scanissue.Severity(fl.Field().String()).IsValid()
}

func validateIssueStatus(fl validator.FieldLevel) bool {
	return scanissue.Status(fl.Field().String()).IsValid()
}

func validateCronExpr(fl validator.FieldLevel) bool {
	_, err := cronParser.Parse(fl.Field().String())
	return err == nil
}

// messageForTag converts a validator tag to a readable message.
func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "scan_type":
		return "must be one of: full, incremental, sample"
	case "concurrency_policy":
		return "must be one of: queue, reject, parallel"
	case "trigger_type":
		return "must be one of: manual, scheduled, api"
	case "severity":
		return "must be one of: critical, high, medium, low"
	case "issue_status":
		return "must be one of: detected, assigned, resolved"
	case "cron_expr":
		return "must be a valid cron expression"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// toSnakeCase converts a Go field name to its JSON-ish snake_case form.
// Runs of capitals (ID, PII) collapse into one word.
func toSnakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
