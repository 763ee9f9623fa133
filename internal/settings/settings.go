package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/config"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Settings are decrypted engine settings in document order.
type Settings struct {
	values api.ParameterSet
	source string
}

// Empty returns settings with no values.
func Empty() *Settings {
	return &Settings{}
}

// FromValues builds settings from an ordered set.
func FromValues(values api.ParameterSet) *Settings {
	return &Settings{values: values.Clone()}
}

// Get returns a single setting.
func (s *Settings) Get(key string) (string, bool) {
	return s.values.Get(key)
}

// Values returns a copy of all settings.
func (s *Settings) Values() api.ParameterSet {
	return s.values.Clone()
}

// Len returns the number of settings.
func (s *Settings) Len() int {
	return s.values.Len()
}

// Source is the file the settings were read from, if any.
func (s *Settings) Source() string {
	return s.source
}

type document struct {
	Settings  yaml.Node `yaml:"settings"`
	Algorithm string    `yaml:"algorithm"`
	Encrypted string    `yaml:"encrypted"`
}

// Load reads the settings document at path. An empty path yields empty
// settings. password is only used for encrypted documents.
func Load(path, password string) (*Settings, error) {
	if path == "" {
		return Empty(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, settingsError(path, "", "io", "cannot read settings file", err)
	}

	s, err := Parse(data, password)
	if err != nil {
		var confErr config.ConfigurationError
		if errors.As(err, &confErr) {
			confErr.FilePath = path
			confErr.FileName = filepath.Base(path)
			return nil, confErr
		}
		return nil, err
	}
	s.source = path
	logging.Info("Settings", "Loaded %d engine settings from %s", s.Len(), path)
	return s, nil
}

// Parse decodes a settings document.
func Parse(data []byte, password string) (*Settings, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, settingsError("", "", "parse", "malformed settings document", err)
	}

	if doc.Encrypted == "" {
		values, err := decodeMapping(&doc.Settings)
		if err != nil {
			return nil, settingsError("", "", "parse", "settings must be a mapping of strings", err)
		}
		return &Settings{values: values}, nil
	}

	if doc.Algorithm != "" && doc.Algorithm != Algorithm {
		return nil, settingsError("", "encryption", "decrypt",
			fmt.Sprintf("unsupported algorithm %q", doc.Algorithm), nil, "re-encrypt the settings with `suidriver settings encrypt`")
	}
	if password == "" {
		return nil, settingsError("", "encryption", "decrypt", "settings are encrypted but no password was given", nil,
			"set SUIDRIVER_ENGINE_SETTINGS_PASSWORD")
	}

	plain, err := Decrypt(doc.Encrypted, password)
	if err != nil {
		return nil, settingsError("", "encryption", "decrypt", "cannot decrypt settings", err)
	}

	var inner yaml.Node
	if err := yaml.Unmarshal(plain, &inner); err != nil {
		return nil, settingsError("", "encryption", "parse", "decrypted settings are malformed", err)
	}
	root := &inner
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	values, err := decodeMapping(root)
	if err != nil {
		return nil, settingsError("", "encryption", "parse", "decrypted settings must be a mapping of strings", err)
	}
	return &Settings{values: values}, nil
}

// decodeMapping keeps key order, which a plain map would lose.
func decodeMapping(node *yaml.Node) (api.ParameterSet, error) {
	var values api.ParameterSet
	if node.Kind == 0 {
		return values, nil
	}
	if node.Kind != yaml.MappingNode {
		return values, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return values, fmt.Errorf("line %d: value of %q is not a scalar", value.Line, key.Value)
		}
		values.Set(key.Value, value.Value)
	}
	return values, nil
}

func settingsError(path, category, errorType, message string, err error, suggestions ...string) config.ConfigurationError {
	ce := config.ConfigurationError{
		FilePath:    path,
		FileName:    filepath.Base(path),
		Source:      "settings",
		Category:    category,
		ErrorType:   errorType,
		Message:     message,
		Suggestions: suggestions,
	}
	if path == "" {
		ce.FileName = "settings"
	}
	if err != nil {
		ce.Details = err.Error()
	}
	return ce
}
