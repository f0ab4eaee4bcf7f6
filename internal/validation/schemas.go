package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError reports a single schema violation in a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result collects the outcome of validating a payload against a schema.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (r Result) Error() string {
	if r.Valid || len(r.Errors) == 0 {
		return "payload is invalid"
	}
	return fmt.Sprintf("invalid field %s: %s", r.Errors[0].Field, r.Errors[0].Message)
}

// MustCompile compiles a JSON Schema document, panicking on malformed
// schemas. Schemas are package constants, so a failure here is a
// programming error caught at startup.
func MustCompile(schemaJSON string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid JSON schema: %v", err))
	}
	return schema
}

// Validate checks a decoded payload against a compiled schema.
func Validate(schema *gojsonschema.Schema, payload any) Result {
	outcome, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return Result{Valid: false, Errors: []FieldError{{Field: "payload", Message: err.Error()}}}
	}
	if outcome.Valid() {
		return Result{Valid: true}
	}

	errors := make([]FieldError, 0, len(outcome.Errors()))
	for _, desc := range outcome.Errors() {
		errors = append(errors, FieldError{Field: desc.Field(), Message: desc.Description()})
	}
	return Result{Valid: false, Errors: errors}
}
