// Package jsonschema checks and synthesizes values against the JSON Schema
// documents used for structured LLM responses.
//
// Validation is delegated to github.com/santhosh-tekuri/jsonschema/v6
// (draft 2020-12 unless the document names another $schema). Schemas may
// come from decoded JSON ([]any, float64) or from Go literals ([]string,
// int); both are normalized to plain JSON before compiling.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const resourceURL = "mem://response.schema.json"

// Schema is a decoded JSON Schema document.
type Schema = map[string]any

// ValidationError locates the first violation found.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Msg
}

var printer = message.NewPrinter(language.English)

// Compile parses schema into a reusable validator.
func Compile(schema Schema) (*validator.Schema, error) {
	doc, err := toJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	c := validator.NewCompiler()
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

// Validate checks value against schema. A nil schema accepts everything.
func Validate(schema Schema, value any) error {
	if schema == nil {
		return nil
	}
	compiled, err := Compile(schema)
	if err != nil {
		return err
	}
	inst, err := toJSON(value)
	if err != nil {
		return &ValidationError{Path: "$", Msg: err.Error()}
	}
	if err := compiled.Validate(inst); err != nil {
		return firstViolation(err)
	}
	return nil
}

// toJSON re-decodes v with the validator's decoder so numbers and typed Go
// values take the shapes it expects.
func toJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return validator.UnmarshalJSON(bytes.NewReader(b))
}

// firstViolation descends to the innermost cause and renders it with a
// "$.field[0]" style path.
func firstViolation(err error) error {
	verr, ok := err.(*validator.ValidationError)
	if !ok {
		return &ValidationError{Path: "$", Msg: err.Error()}
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return &ValidationError{
		Path: instancePath(verr.InstanceLocation),
		Msg:  verr.ErrorKind.LocalizedString(printer),
	}
}

func instancePath(loc []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, tok := range loc {
		if _, err := strconv.Atoi(tok); err == nil {
			sb.WriteString("[" + tok + "]")
			continue
		}
		sb.WriteString("." + tok)
	}
	return sb.String()
}
