package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError describes a malformed board payload.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

const boardSchemaURL = "mem://omocrm/board.json"

// Extra properties on cards and steps are allowed and stored verbatim.
const boardSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "cards": {"type": ["array", "null"], "items": {"$ref": "#/definitions/card"}},
    "steps": {"type": ["array", "null"], "items": {"$ref": "#/definitions/step"}}
  },
  "definitions": {
    "card": {
      "type": "object",
      "required": ["id", "columnId", "title"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "columnId": {"type": "string", "minLength": 1},
        "title": {"type": "string"}
      }
    },
    "step": {
      "type": "object",
      "required": ["id", "title"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "completed": {"type": "boolean"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func boardSchemaValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(boardSchemaURL, boardSchema)
	})
	return schema, schemaErr
}

// ValidatePayload checks a raw {cards, steps} request body against the board
// schema and rejects duplicate card or step ids.
func ValidatePayload(body []byte) error {
	var doc any
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return &ValidationError{Message: "invalid JSON"}
	}
	s, err := boardSchemaValidator()
	if err != nil {
		return fmt.Errorf("compile board schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return schemaError(err)
	}

	var b Board
	if err := sonic.Unmarshal(body, &b); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return b.Validate()
}

// Validate enforces id uniqueness within the board.
func (b Board) Validate() error {
	seen := make(map[string]struct{}, len(b.Cards))
	for i, c := range b.Cards {
		if c.ID == "" {
			return &ValidationError{Path: fmt.Sprintf("cards/%d/id", i), Message: "id is required"}
		}
		if _, dup := seen[c.ID]; dup {
			return &ValidationError{Path: fmt.Sprintf("cards/%d/id", i), Message: "duplicate card id " + c.ID}
		}
		seen[c.ID] = struct{}{}
	}
	seen = make(map[string]struct{}, len(b.Steps))
	for i, s := range b.Steps {
		if s.ID == "" {
			return &ValidationError{Path: fmt.Sprintf("steps/%d/id", i), Message: "id is required"}
		}
		if _, dup := seen[s.ID]; dup {
			return &ValidationError{Path: fmt.Sprintf("steps/%d/id", i), Message: "duplicate step id " + s.ID}
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func schemaError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &ValidationError{Message: err.Error()}
	}
	leaf := firstLeaf(ve)
	return &ValidationError{
		Path:    strings.TrimPrefix(leaf.InstanceLocation, "/"),
		Message: leaf.Message,
	}
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
