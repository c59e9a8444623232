package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vitalis-dev/vitalis-store/internal/jsonschema"
)

var ErrSchemaMismatch = errors.New("llm response does not match schema")

// LLMRequest asks a model for an answer, optionally structured by a JSON Schema.
type LLMRequest struct {
	Prompt         string         `json:"prompt"`
	FileURLs       []string       `json:"file_urls,omitempty"`
	ResponseSchema map[string]any `json:"response_json_schema,omitempty"`
}

// Invoker runs LLM requests.
type Invoker interface {
	Invoke(ctx context.Context, req LLMRequest) (map[string]any, error)
}

// StubInvoker answers offline. Without Respond, it synthesizes a value that
// satisfies the request schema.
type StubInvoker struct {
	Respond func(req LLMRequest) (map[string]any, error)
}

func (s *StubInvoker) Invoke(ctx context.Context, req LLMRequest) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	if s.Respond != nil {
		out, err := s.Respond(req)
		if err != nil {
			return nil, err
		}
		return checkResponse(req.ResponseSchema, out)
	}
	if req.ResponseSchema == nil {
		return map[string]any{"response": "This is a placeholder response."}, nil
	}
	v := jsonschema.Synthesize(req.ResponseSchema)
	obj, ok := v.(map[string]any)
	if !ok {
		obj = map[string]any{"value": v}
	}
	return obj, nil
}

// checkResponse validates out against schema, wrapping failures in
// ErrSchemaMismatch.
func checkResponse(schema map[string]any, out map[string]any) (map[string]any, error) {
	if err := jsonschema.Validate(schema, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return out, nil
}

// decodeResponse parses model text as a JSON object. Markdown code fences
// around the JSON are tolerated.
func decodeResponse(text string, schema map[string]any) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if schema == nil {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return map[string]any{"response": text}, nil
		}
		return obj, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return checkResponse(schema, obj)
}
