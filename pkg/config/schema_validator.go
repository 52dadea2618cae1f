package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/bridgeconfig.json
var bridgeConfigSchema []byte

// SchemaValidationError represents a schema validation error with helpful context
type SchemaValidationError struct {
	Field       string
	Description string
	Value       interface{}
}

func (e SchemaValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Description, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// SchemaValidationResult contains the results of schema validation
type SchemaValidationResult struct {
	Valid  bool
	Errors []SchemaValidationError
}

// Err folds the result into a single error, or nil when the document is valid.
func (r *SchemaValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Schema returns the embedded JSON schema for BridgeConfig manifests.
func Schema() []byte {
	return bridgeConfigSchema
}

// ValidateWithSchema validates YAML (or JSON) data against the embedded BridgeConfig schema.
func ValidateWithSchema(yamlData []byte) (*SchemaValidationResult, error) {
	jsonData, err := yamlToJSON(yamlData)
	if err != nil {
		return nil, err
	}

	schemaLoader := gojsonschema.NewBytesLoader(bridgeConfigSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	validationResult := &SchemaValidationResult{
		Valid:  result.Valid(),
		Errors: make([]SchemaValidationError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, SchemaValidationError{
			Field:       desc.Field(),
			Description: desc.Description(),
			Value:       desc.Value(),
		})
	}

	return validationResult, nil
}

// yamlToJSON converts YAML to JSON for schema validation and decoding.
func yamlToJSON(yamlData []byte) ([]byte, error) {
	var data interface{}
	if err := yaml.Unmarshal(yamlData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("configuration is empty")
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
	}
	return jsonData, nil
}
