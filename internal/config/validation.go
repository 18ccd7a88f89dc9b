package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key rather than the Go field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// InvalidField is one config key that failed a rule
type InvalidField struct {
	Key   string
	Rule  string
	Param string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []InvalidField
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		if f.Param != "" {
			sb.WriteString(fmt.Sprintf("  - %s: must satisfy %s=%s\n", f.Key, f.Rule, f.Param))
		} else {
			sb.WriteString(fmt.Sprintf("  - %s: must satisfy %s\n", f.Key, f.Rule))
		}
	}
	return sb.String()
}

// Has reports whether key failed validation.
func (e *ValidationErrors) Has(key string) bool {
	for _, f := range e.Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := &ValidationErrors{}
	for _, fe := range fieldErrs {
		errs.Fields = append(errs.Fields, InvalidField{
			Key:   configKey(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// configKey drops the root struct name: "Config.gateway.url" -> "gateway.url".
func configKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
