package host

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as "500ms" or "2s" in manifests.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// FunctionSpec declares one webhook-backed host function.
type FunctionSpec struct {
	Name    string            `yaml:"name" toml:"name" validate:"required"`
	URL     string            `yaml:"url" toml:"url" validate:"required,url"`
	Method  string            `yaml:"method" toml:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Timeout Duration          `yaml:"timeout" toml:"timeout" validate:"gte=0"`
	Retries int               `yaml:"retries" toml:"retries" validate:"gte=0,lte=10"`
	Headers map[string]string `yaml:"headers" toml:"headers"`
}

// Manifest lists the host functions of a deployment.
type Manifest struct {
	Functions []FunctionSpec `yaml:"functions" toml:"functions" validate:"dive"`
}

var validate = validator.New()

// LoadManifest reads a manifest file. The format follows the extension:
// .toml for TOML, anything else is YAML.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest in format "yaml" or "toml".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "yaml", "yml":
		if err := yaml.UnmarshalWithOptions(data, &m, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("invalid manifest: %w", err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("invalid manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks field constraints and rejects duplicate names.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Functions))
	for _, spec := range m.Functions {
		if seen[spec.Name] {
			return fmt.Errorf("invalid manifest: %w: %s", ErrDuplicate, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

// Register installs a webhook for every declared function.
func (m *Manifest) Register(reg *Registry) error {
	for _, spec := range m.Functions {
		if err := reg.Register(spec.Name, NewWebhook(spec).Call); err != nil {
			return err
		}
	}
	return nil
}
