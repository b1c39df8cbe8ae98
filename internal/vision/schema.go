package vision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildFuelJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It constrains the model's output and is used locally to
// validate the response before anything downstream trusts it.
func buildFuelJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"merchant_name":   map[string]any{"type": "string"},
			"total_amount":    map[string]any{"type": "number", "minimum": 0},
			// free-form string: the parser tries several date layouts, and
			// one oddly-formatted date must not discard the whole extraction
			"tx_date":         map[string]any{"type": "string"},
			"litres":          map[string]any{"type": "number", "minimum": 0},
			"fuel_type":       map[string]any{"type": "string"},
			"price_per_litre": map[string]any{"type": "number", "minimum": 0},
			"pump_number":     map[string]any{"type": "string"},
			"vehicle_reg":     map[string]any{"type": "string"},
		},
		"required": []string{},
	}
}

// validateJSONAgainstSchema validates data against schemaMap.
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
