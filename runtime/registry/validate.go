package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pipelinerun/engine/runtime/toolident"
)

// schemaCache holds compiled JSON schemas keyed by tool name, built lazily
// from a ToolDescriptor's InputSchema. The registry itself is read-only after
// startup, but compiled schemas are built on first use rather than at
// Register time to keep registration cheap for tools nobody invokes in a
// given process run.
var schemaCache sync.Map // toolident.Ident -> *jsonschema.Schema

// ValidateParams checks params against desc's declared input schema. Unknown
// parameters are allowed (the declared schema documents what the tool reads,
// not an exhaustive allow-list), and declared parameters are optional: only a
// declared parameter whose value has the wrong type is reported.
func ValidateParams(desc ToolDescriptor, params map[string]any) error {
	if len(desc.InputSchema) == 0 {
		return nil
	}
	schema, err := compiledSchema(desc)
	if err != nil {
		return fmt.Errorf("registry: compile schema for %q: %w", desc.Name, err)
	}
	// jsonschema validates decoded JSON values (map[string]interface{} with
	// float64 numbers); round-trip params through JSON to normalize types
	// the same way a wire-decoded pipeline spec would arrive.
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("registry: encode params for %q: %w", desc.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("registry: decode params for %q: %w", desc.Name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("registry: %q: %w", desc.Name, err)
	}
	return nil
}

func compiledSchema(desc ToolDescriptor) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(desc.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	doc := schemaDocument(desc.InputSchema)
	url := "mem://tool/" + string(desc.Name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(desc.Name, schema)
	return schema, nil
}

// schemaDocument renders a tool's declared parameter types into a draft
// 2020-12 JSON Schema object. Placeholder-bearing string parameters are
// permitted under every declared type except list and map (which require an
// array and an object respectively) since, before substitution, their
// runtime value is still the literal "$node.output..." string; the
// registry only ever validates post-resolution, post-adaptation params, so
// in practice this permissiveness only matters for tests that invoke a tool
// directly with unresolved placeholders.
func schemaDocument(input map[string]toolident.SemanticType) []byte {
	props := make(map[string]any, len(input))
	for name, typ := range input {
		props[name] = jsonTypeFor(typ)
	}
	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
	b, _ := json.Marshal(doc)
	return b
}

func jsonTypeFor(t toolident.SemanticType) map[string]any {
	switch t {
	case toolident.SemanticNumber:
		return map[string]any{"type": []string{"number", "string"}}
	case toolident.SemanticBoolean:
		return map[string]any{"type": []string{"boolean", "string"}}
	case toolident.SemanticList:
		return map[string]any{"type": "array"}
	case toolident.SemanticMap:
		return map[string]any{"type": "object"}
	case toolident.SemanticAny:
		return map[string]any{}
	default:
		// string, file_path, file_content, url, image_ref: all represented
		// on the wire as strings (or, for image_ref, an in-memory value whose
		// JSON encoding is an object, or an array for a list of images).
		return map[string]any{"type": []string{"string", "object", "array"}}
	}
}
