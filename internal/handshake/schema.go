package handshake

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// subscribeOptionsSchema and interceptOptionsSchema validate the shape of
// subscribe-options/intercept-options before the handshake hands them to a
// processor constructor — catching a malformed client before any
// processor-specific state is built, rather than failing deep inside it.
var (
	subscribeOptionsSchema *jsonschema.Schema
	interceptOptionsSchema *jsonschema.Schema
)

func init() {
	subscribeOptionsSchema = mustCompile("subscribe-options", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode":   map[string]any{"enum": []any{"Full", "Patch"}},
			"filter": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"mode"},
	})

	interceptOptionsSchema = mustCompile("intercept-options", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage":        map[string]any{"enum": []any{"PreCode", "PostCode", "ExecutedCode"}},
			"channels":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"codeTypes":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mcodeNumbers": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
	})
}

func mustCompile(name string, schema map[string]any) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	uri := "dcsd://handshake/" + name
	if err := compiler.AddResource(uri, schema); err != nil {
		panic(fmt.Sprintf("handshake: invalid %s schema: %v", name, err))
	}
	compiled, err := compiler.Compile(uri)
	if err != nil {
		panic(fmt.Sprintf("handshake: compile %s schema: %v", name, err))
	}
	return compiled
}

// validateJSON decodes raw (already-unmarshaled to map[string]any by the
// caller) against schema.
func validateJSON(schema *jsonschema.Schema, doc any) error {
	if doc == nil {
		return nil
	}
	return schema.Validate(doc)
}
