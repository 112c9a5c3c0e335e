package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Warn", WARN, false},
		{"error", ERROR, false},
		{"FATAL", FATAL, false},
		{"verbose", -1, true},
		{"", -1, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestPackageLogLevelOverrides(t *testing.T) {
	require.NoError(t, SetPackageLogLevels(map[string]string{
		"diaggraph.*":     "debug",
		"session.manager": "warn",
	}))
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	assert.Equal(t, DEBUG, GetPackageLogLevel("diaggraph.runtime"))
	assert.Equal(t, WARN, GetPackageLogLevel("session.manager"))
	// No override configured for this package.
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("tools.executor"))
}

func TestPackageLogLevelSpecificity(t *testing.T) {
	require.NoError(t, SetPackageLogLevels(map[string]string{
		"agents.*":         "info",
		"agents.network.*": "debug",
	}))
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	assert.Equal(t, DEBUG, GetPackageLogLevel("agents.network.dns"))
	assert.Equal(t, INFO, GetPackageLogLevel("agents.storage"))
}

func TestChildLoggersAreImmutable(t *testing.T) {
	base := GetLogger("test")
	child := base.WithField("session_id", "abc")
	grandchild := child.WithField("agent", "node")

	assert.Empty(t, base.fields)
	assert.Len(t, child.fields, 1)
	assert.Len(t, grandchild.fields, 2)
	assert.Equal(t, "abc", grandchild.fields["session_id"])
}

func TestSetPackageLogLevelsRejectsInvalid(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"foo": "shout"})
	assert.Error(t, err)
}
