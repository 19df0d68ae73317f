package pkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// report json field names instead of the go ones
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// InvalidField describes one failed rule of a request struct.
type InvalidField struct {
	Name string
	Rule string
}

func (f InvalidField) String() string {
	return fmt.Sprintf("%s:%s", f.Name, f.Rule)
}

// Validate runs the struct validation tags and returns the failed fields, if any.
func Validate(obj any) []InvalidField {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var invalidValidationErr *validator.InvalidValidationError
	if errors.As(err, &invalidValidationErr) {
		panic(invalidValidationErr)
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return nil
	}

	fields := make([]InvalidField, len(vErrs))
	for i, e := range vErrs {
		fields[i] = InvalidField{
			Name: e.Field(),
			Rule: e.Tag(),
		}
	}
	return fields
}

// HasRule reports whether any of the failed fields broke the given rule.
func HasRule(fields []InvalidField, rule string) bool {
	for _, f := range fields {
		if f.Rule == rule {
			return true
		}
	}
	return false
}

// DecodeJSONBody decodes a JSON request body into T, rejecting unknown fields.
func DecodeJSONBody[T any](r *http.Request) (T, error) {
	var obj T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&obj); err != nil {
		if errors.Is(err, io.EOF) {
			return obj, errors.New("empty request body")
		}
		return obj, err
	}
	return obj, nil
}
