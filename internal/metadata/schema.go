package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildMetadataJSONSchema returns the JSON Schema accepted for document
// metadata: a flat object of known keys with string or number values.
func BuildMetadataJSONSchema() map[string]any {
	props := map[string]any{}
	for _, k := range entity.MetadataKeys() {
		props[k] = map[string]any{"type": []string{"string", "number", "null"}}
	}
	props["currency"] = map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string", "pattern": `^\s*([A-Za-z]{3})?\s*$`},
			map[string]any{"type": "null"},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildMetadataJSONSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("metadata.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("metadata.json")
	})
	return schema, schemaErr
}

// DecodeMetadata validates raw JSON against the metadata schema and decodes
// it. Empty input decodes to empty metadata.
func DecodeMetadata(raw []byte) (entity.Metadata, error) {
	var m entity.Metadata
	if len(bytes.TrimSpace(raw)) == 0 {
		return m, nil
	}
	s, err := compiledSchema()
	if err != nil {
		return m, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return m, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return m, fmt.Errorf("metadata does not match schema: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	return m, nil
}
