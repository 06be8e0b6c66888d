package llmgateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// unmarshalValidated parses raw against schema (when non-empty) and, on
// success, unmarshals it into out. A schema-validation failure is always
// classified Permanent (spec.md §4.4: "Schema-validation failures count as
// permanent and do not retry") — callers must not retry on this path.
func unmarshalValidated(raw []byte, schema []byte, out any) error {
	if len(schema) > 0 {
		if err := validateAgainstSchema(raw, schema); err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrPermanent, err)
	}
	return nil
}

func validateAgainstSchema(raw []byte, schemaBytes []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("loading response schema: %w", err)
	}
	sch, err := compiler.Compile("response.json")
	if err != nil {
		return fmt.Errorf("compiling response schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
