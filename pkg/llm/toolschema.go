package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolSchemaValidator validates a tool call's arguments against a real
// JSON Schema document, generalizing pkg/manifest's ad hoc
// required/type field-map (ToolArgSchema/FieldSpec) into full
// JSON-Schema validation — draft support, nested objects, enums, and
// pattern constraints that a flat field map cannot express.
type ToolSchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewToolSchemaValidator compiles one JSON Schema document per tool
// name. schemaDocs maps tool name to its raw (unmarshaled) schema.
func NewToolSchemaValidator(schemaDocs map[string]map[string]any) (*ToolSchemaValidator, error) {
	v := &ToolSchemaValidator{schemas: make(map[string]*jsonschema.Schema, len(schemaDocs))}
	for name, doc := range schemaDocs {
		compiler := jsonschema.NewCompiler()
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("llm: marshal schema for tool %q: %w", name, err)
		}
		resourceName := name + ".json"
		if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("llm: add schema resource for tool %q: %w", name, err)
		}
		schema, err := compiler.Compile(resourceName)
		if err != nil {
			return nil, fmt.Errorf("llm: compile schema for tool %q: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// ValidateToolCall checks a tool call's Arguments against the
// compiled schema for ToolCall.Name. A tool with no registered schema
// passes unchecked — the validator only gates tools it knows about.
func (v *ToolSchemaValidator) ValidateToolCall(call ToolCall) error {
	schema, ok := v.schemas[call.Name]
	if !ok {
		return nil
	}
	if err := schema.Validate(toJSONValue(call.Arguments)); err != nil {
		return fmt.Errorf("llm: tool %q arguments failed schema validation: %w", call.Name, err)
	}
	return nil
}

// toJSONValue round-trips through encoding/json so map[string]any
// values (e.g. containing json.Number-incompatible types) match what
// jsonschema.Validate expects to walk.
func toJSONValue(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}
