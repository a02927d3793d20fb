package utils

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate reports fields by their JSON names so messages match what the
// client sent
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// ValidateStruct checks a decoded rule or message against its validate tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError maps each offending JSON attribute to its message
type ValidationError struct {
	Fields map[string]string
}

// Error joins the field messages in attribute order
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return strings.Join(msgs, "; ")
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, err := range errs {
		name := err.Field()
		switch err.Tag() {
		case "required":
			fields[name] = fmt.Sprintf("Attribute '%s' is required", name)
		case "required_if":
			// the param is "<Field> <value>"; only the value reads well
			params := strings.Fields(err.Param())
			fields[name] = fmt.Sprintf("Attribute '%s' is required for %s", name, params[len(params)-1])
		case "oneof":
			fields[name] = fmt.Sprintf("Attribute '%s' is not valid: %v, expected one of: %s",
				name, err.Value(), strings.ReplaceAll(err.Param(), " ", ", "))
		default:
			fields[name] = fmt.Sprintf("Attribute '%s' is not valid: %v", name, err.Value())
		}
	}
	return &ValidationError{Fields: fields}
}

// GetValidationFields extracts attribute messages from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
