package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Limits enforced by the custom request tags.
const (
	maxPixels        = 8192
	maxClientNameLen = 128
	unsetPosition    = -1
)

var (
	// ErrValidation wraps every request that bound but broke a rule.
	ErrValidation = errors.New("validation failed")

	// ErrBinding wraps JSON or query payloads that could not be decoded.
	ErrBinding = errors.New("binding failed")
)

var (
	requestValidator *validator.Validate
	validatorOnce    sync.Once
)

// displayTags are the request rules specific to displays and their decks.
var displayTags = map[string]validator.Func{
	"pixels":     isPixelCount,
	"clientname": isClientName,
	"position":   isDeckPosition,
}

// Validator returns the shared request validator. Field errors are reported
// under the JSON (or form) name the client sent.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(wireName)

		for tag, fn := range displayTags {
			_ = v.RegisterValidation(tag, fn)
		}

		requestValidator = v
	})

	return requestValidator
}

func wireName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}

		if name != "" {
			return name
		}
	}

	return fld.Name
}

// isPixelCount accepts a card dimension in 1..8192.
func isPixelCount(fl validator.FieldLevel) bool {
	n := fl.Field().Int()
	return n >= 1 && n <= maxPixels
}

// isClientName accepts a printable name that is not blank once trimmed.
func isClientName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) == "" || len(name) > maxClientNameLen {
		return false
	}

	return strings.IndexFunc(name, unicode.IsControl) < 0
}

// isDeckPosition accepts -1 (no position yet) or any deck index.
func isDeckPosition(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= unsetPosition
}

// Validate checks struct tags on v.
func Validate(v any) error {
	if err := Validator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// Validatable is implemented by requests with rules that span fields.
type Validatable interface {
	Validate() error
}

// ValidateAll runs the tag rules and then, if v has one, its own Validate.
func ValidateAll(v any) error {
	if err := Validate(v); err != nil {
		return err
	}

	cross, ok := v.(Validatable)
	if !ok {
		return nil
	}

	if err := cross.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// BindAndValidate decodes the JSON body into v and validates it.
func BindAndValidate(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	return ValidateAll(v)
}

// BindQueryAndValidate decodes the query string into v and validates it.
func BindQueryAndValidate(c *gin.Context, v any) error {
	if err := c.ShouldBindQuery(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	return ValidateAll(v)
}

// IsValidationError reports whether err carries validator field errors.
func IsValidationError(err error) bool {
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &fieldErrs)
}

// ValidationErrors flattens validator field errors into the details map of
// an error response.
func ValidationErrors(err error) map[string]string {
	details := make(map[string]string)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return details
	}

	for _, fe := range fieldErrs {
		details[fe.Field()] = validationMessage(fe)
	}

	return details
}

func validationMessage(fe validator.FieldError) string {
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "pixels":
		return "must be between 1 and " + strconv.Itoa(maxPixels) + " pixels"
	case "clientname":
		return "must be a printable name of at most " + strconv.Itoa(maxClientNameLen) + " characters"
	case "position":
		return "must be -1 or a deck index"
	case "min":
		return "must be at least " + param + unitSuffix(fe.Kind())
	case "max":
		return "must be at most " + param + unitSuffix(fe.Kind())
	case "oneof":
		return "must be one of: " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	default:
		return "failed validation: " + fe.Tag()
	}
}

func unitSuffix(kind reflect.Kind) string {
	if kind == reflect.String {
		return " characters"
	}

	return ""
}
