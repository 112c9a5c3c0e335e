package config

import (
	"fmt"
	"os"
)

// CollectorType identifies which external system a profile points at.
type CollectorType string

const (
	CollectorPrometheus CollectorType = "prometheus"
	CollectorLogIndex   CollectorType = "log_index"
	CollectorCluster    CollectorType = "cluster"
	CollectorTracing    CollectorType = "tracing"
	CollectorSourceHost CollectorType = "source_host"
)

// EndpointStatus reflects the last known reachability of a collector endpoint.
type EndpointStatus string

const (
	EndpointOK          EndpointStatus = "ok"
	EndpointConnError   EndpointStatus = "conn_error"
	EndpointUnreachable EndpointStatus = "unreachable"
)

// ProfilesFile is the top-level structure of the collector profiles file.
//
// Example YAML structure:
//
//	schema_version: v1
//	profiles:
//	  - name: prometheus-prod
//	    type: prometheus
//	    enabled: true
//	    endpoint: "http://prometheus:9090"
//	  - name: logs-prod
//	    type: log_index
//	    enabled: true
//	    endpoint: "http://victorialogs:9428"
//	    token_env: LOG_INDEX_TOKEN
type ProfilesFile struct {
	// SchemaVersion is the explicit config schema version (e.g., "v1")
	SchemaVersion string `yaml:"schema_version" koanf:"schema_version"`

	// Profiles is the list of collector profiles to manage
	Profiles []CollectorProfile `yaml:"profiles" koanf:"profiles"`
}

// CollectorProfile is one collector endpoint configuration. Tokens are
// never stored inline; TokenEnv names the environment variable that
// holds the credential.
type CollectorProfile struct {
	Name     string         `yaml:"name" koanf:"name"`
	Type     CollectorType  `yaml:"type" koanf:"type"`
	Enabled  bool           `yaml:"enabled" koanf:"enabled"`
	Endpoint string         `yaml:"endpoint" koanf:"endpoint"`
	TokenEnv string         `yaml:"token_env,omitempty" koanf:"token_env"`
	Config   map[string]any `yaml:"config,omitempty" koanf:"config"`
}

// ResolvedProfile is a profile with its credential materialized. It is
// consumed directly by collector clients and must never be embedded in
// a pin or event payload.
type ResolvedProfile struct {
	CollectorProfile
	Token  string
	Status EndpointStatus
}

// ResolveProfile materializes the profile's token from the environment.
// This is the only place plaintext credentials are produced.
func ResolveProfile(p CollectorProfile) ResolvedProfile {
	resolved := ResolvedProfile{CollectorProfile: p, Status: EndpointOK}
	if p.TokenEnv != "" {
		resolved.Token = os.Getenv(p.TokenEnv)
	}
	return resolved
}

var validCollectorTypes = map[CollectorType]bool{
	CollectorPrometheus: true,
	CollectorLogIndex:   true,
	CollectorCluster:    true,
	CollectorTracing:    true,
	CollectorSourceHost: true,
}

// Validate checks that the ProfilesFile is valid.
func (f *ProfilesFile) Validate() error {
	if f.SchemaVersion != "v1" {
		return NewConfigError(fmt.Sprintf(
			"unsupported schema_version: %q (expected \"v1\")", f.SchemaVersion))
	}

	seenNames := make(map[string]bool)
	for i, p := range f.Profiles {
		if p.Name == "" {
			return NewConfigError(fmt.Sprintf("profile[%d]: name is required", i))
		}
		if !validCollectorTypes[p.Type] {
			return NewConfigError(fmt.Sprintf(
				"profile[%d] (%s): unknown collector type %q", i, p.Name, p.Type))
		}
		if p.Endpoint == "" && p.Type != CollectorCluster {
			return NewConfigError(fmt.Sprintf(
				"profile[%d] (%s): endpoint is required", i, p.Name))
		}
		if seenNames[p.Name] {
			return NewConfigError(fmt.Sprintf(
				"profile[%d]: duplicate profile name %q", i, p.Name))
		}
		seenNames[p.Name] = true
	}
	return nil
}

// Enabled returns only the enabled profiles.
func (f *ProfilesFile) EnabledProfiles() []CollectorProfile {
	out := make([]CollectorProfile, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
