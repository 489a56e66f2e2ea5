// Package plugin implements the installable-plugin lifecycle behind the
// InstallPlugin/StartPlugin/StopPlugin/UninstallPlugin/SetPluginData
// command kinds named in spec §4.7. spec.md's distillation names the
// kinds but not their implementation; this module supplies it, grounded
// in the original DuetSoftwareFramework plugin manager and built in the
// teacher's PTY-supervised-subprocess idiom (internal/daemon/instance.go).
package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/duet3d/dcsd/internal/connection"
)

// Manifest is the parsed contents of a plugin's plugin.yaml.
type Manifest struct {
	ID          string                `yaml:"id"`
	Name        string                `yaml:"name"`
	Command     string                `yaml:"command"`
	Args        []string              `yaml:"args"`
	Permissions []connection.Permission `yaml:"permissions"`

	// DataSchema, if set, is a JSON Schema (inline as a YAML/JSON map) that
	// SetPluginData payloads for this plugin must validate against.
	DataSchema map[string]any `yaml:"dataSchema,omitempty"`

	dir      string
	schema   *jsonschema.Schema
}

// LoadManifest reads <dir>/plugin.yaml and compiles its dataSchema, if any.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "plugin.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m.dir = dir
	if m.ID == "" {
		m.ID = filepath.Base(dir)
	}

	if len(m.DataSchema) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(m.ID+"#/dataSchema", m.DataSchema); err != nil {
			return nil, fmt.Errorf("plugin %s: invalid dataSchema: %w", m.ID, err)
		}
		schema, err := compiler.Compile(m.ID + "#/dataSchema")
		if err != nil {
			return nil, fmt.Errorf("plugin %s: compile dataSchema: %w", m.ID, err)
		}
		m.schema = schema
	}
	return &m, nil
}

// ValidateData checks data (already decoded from JSON, e.g. map[string]any)
// against the plugin's declared dataSchema. A plugin with no dataSchema
// accepts any data.
func (m *Manifest) ValidateData(data any) error {
	if m.schema == nil {
		return nil
	}
	return m.schema.Validate(data)
}

// Dir returns the plugin's install directory.
func (m *Manifest) Dir() string { return m.dir }
