package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadProfilesFile loads and validates a collector profiles file using
// Koanf. Returns the parsed and validated ProfilesFile or an error.
//
// Error cases:
//   - File not found or cannot be read
//   - Invalid YAML syntax
//   - Schema validation failure (unsupported version, missing required
//     fields, duplicate names)
func LoadProfilesFile(filepath string) (*ProfilesFile, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load profiles config from %q: %w", filepath, err)
	}

	var profiles ProfilesFile
	if err := k.UnmarshalWithConf("", &profiles, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse profiles config from %q: %w", filepath, err)
	}

	if err := profiles.Validate(); err != nil {
		return nil, fmt.Errorf("profiles config validation failed for %q: %w", filepath, err)
	}

	return &profiles, nil
}
