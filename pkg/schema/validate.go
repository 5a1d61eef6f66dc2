package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileInputSchema compiles a tool's input_schema document. The schema is
// a plain JSON Schema object as consumed by the model client.
func CompileInputSchema(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("input_schema is not serializable: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input_schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid input_schema: %w", err)
	}
	compiled, err := compiler.Compile("input_schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid input_schema: %w", err)
	}
	return compiled, nil
}

// ValidateInput checks a tool input against its compiled schema. A nil
// schema accepts everything.
func ValidateInput(compiled *jsonschema.Schema, input map[string]any) error {
	if compiled == nil {
		return nil
	}
	// jsonschema validates decoded-JSON shapes; normalize through JSON so
	// ints, json.Number and friends compare as numbers.
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("input is not serializable: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return compiled.Validate(decoded)
}
