package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// TimeOfDayLayout is the format of sync.time_of_day.
const TimeOfDayLayout = "15:04"

var validate = newValidator()

// newValidator reports fields by their koanf keys, so errors name the
// setting as it is written in YAML or derived from APP_ variables.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if key := fld.Tag.Get("koanf"); key != "" && key != "-" {
			return key
		}

		return snakeCase(fld.Name)
	})

	if err := v.RegisterValidation("timeofday", isTimeOfDay); err != nil {
		panic(err)
	}

	return v
}

func isTimeOfDay(fl validator.FieldLevel) bool {
	_, err := time.Parse(TimeOfDayLayout, fl.Field().String())
	return err == nil
}

// Validate checks every setting. The service refuses to start on the first
// failing call, listing all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}

		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	if total := c.Render.QuoteHeight + c.Render.TitleHeight + c.Render.AuthorHeight; total > 1 {
		problems = append(problems,
			fmt.Sprintf("render quote, title and author heights sum to %.3f, must be at most 1", total))
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("config validation failed:\n  %s", strings.Join(problems, "\n  "))
}

func describe(fe validator.FieldError) string {
	key := formatFieldPath(fe.Namespace())
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_if":
		field, value, _ := strings.Cut(param, " ")
		return fmt.Sprintf("%s is required when %s is %s", key, snakeCase(field), value)
	case "min":
		return key + " must be at least " + param
	case "max":
		return key + " must be at most " + param
	case "gt":
		return key + " must be greater than " + param
	case "gtefield":
		return key + " must be at least " + snakeCase(param)
	case "oneof":
		return key + " must be one of: " + param
	case "url":
		return key + " must be a valid URL"
	case "timeofday":
		return key + " must be a time of day as HH:MM"
	default:
		return key + " failed validation: " + fe.Tag()
	}
}

// formatFieldPath drops the root struct: "Config.server.port" is reported
// as "server.port".
func formatFieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}

	return snakeCase(namespace)
}

// snakeCase turns a Go field name into its koanf spelling, e.g.
// QuoteMinSize into quote_min_size and JPEGQuality into jpeg_quality.
func snakeCase(name string) string {
	runes := []rune(name)

	var b strings.Builder

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				b.WriteByte('_')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// TimeOfDay parses sync.time_of_day into hours and minutes.
func (s SyncConfig) TimeOfDay() (hour, minute int, err error) {
	t, err := time.Parse(TimeOfDayLayout, s.TimeOfDay)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing sync.time_of_day %q: %w", s.TimeOfDay, err)
	}

	return t.Hour(), t.Minute(), nil
}
