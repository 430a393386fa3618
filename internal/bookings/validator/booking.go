package validator

import (
	"fmt"
	"regexp"
	"strings"

	"boxoffice/pkg/logger"

	"github.com/go-playground/validator/v10"
)

var resourceIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// BookingValidator validates hold and booking request payloads.
type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("resource_id", validateResourceID); err != nil {
		log.Fatal("Failed to register 'resource_id' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// validateResourceID accepts group/unit/owner identifiers: alphanumeric with
// dots, dashes and underscores, at most 64 characters.
func validateResourceID(fl validator.FieldLevel) bool {
	return resourceIDRegex.MatchString(fl.Field().String())
}

func (bv *BookingValidator) Validate(req any) error {
	err := bv.validate.Struct(req)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	var errs ValidationErrors
	for _, fe := range fieldErrors {
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Message: messageForTag(fe),
		})
	}
	return errs
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "resource_id":
		return "must be an alphanumeric identifier (dots, dashes and underscores allowed, max 64 chars)"
	case "min":
		return fmt.Sprintf("must contain at least %s element(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s element(s)", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation rule %q", fe.Tag())
	}
}
