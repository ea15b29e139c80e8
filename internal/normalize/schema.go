package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
)

var idPatterns = map[string]string{
	"so_cccd": `^\d{12}$`,
}

// BuildPayloadSchema returns the JSON-Schema a save payload for t must satisfy.
func BuildPayloadSchema(t constants.DocType) map[string]any {
	props := map[string]any{
		"document_id": map[string]any{"type": "string", "minLength": 1},
	}
	if tbl, ok := fieldmap.TableFor(t); ok {
		for _, e := range tbl.Entries() {
			switch e.Kind {
			case fieldmap.KindDate:
				props[e.PayloadKey] = map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
			case fieldmap.KindGender:
				props[e.PayloadKey] = map[string]any{"enum": []any{string(constants.GenderMale), string(constants.GenderFemale), nil}}
			default:
				prop := map[string]any{"type": "string", "minLength": 1}
				if p, ok := idPatterns[e.PayloadKey]; ok {
					prop["pattern"] = p
				}
				props[e.PayloadKey] = prop
			}
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"document_id"},
	}
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[constants.DocType]*jsonschema.Schema{}
)

func compiledSchema(t constants.DocType) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[t]; ok {
		return s, nil
	}
	b, err := json.Marshal(BuildPayloadSchema(t))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	name := t.Slug() + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache[t] = s
	return s, nil
}

// ValidatePayload checks payload against the schema for t.
func ValidatePayload(t constants.DocType, payload map[string]any) error {
	schema, err := compiledSchema(t)
	if err != nil {
		return err
	}
	// Round-trip so the validator sees plain JSON values.
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
