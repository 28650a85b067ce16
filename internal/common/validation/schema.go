// Package validation wraps JSON schema checks for responses received from
// external services before they are trusted by the pipeline.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateAgainstSchema validates data against the given JSON schema map.
// Both arguments are plain Go values (maps, slices, scalars).
func ValidateAgainstSchema(data interface{}, schema map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("data validation failed: %v", errs)
	}

	return nil
}

// SelectionResponseSchema describes the shape of a model selection response.
// The chosen set number is mandatory; rationale and confidence are optional.
var SelectionResponseSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"set_number": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"rationale": map[string]interface{}{
			"type": "string",
		},
		"confidence": map[string]interface{}{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	},
	"required": []interface{}{"set_number"},
}
