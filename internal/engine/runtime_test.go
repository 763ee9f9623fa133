package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/settings"
)

func TestNewRuntime_WritesSettings(t *testing.T) {
	s := settings.FromValues(api.NewParameterSet("b@key", "2", "a@key", "1"))

	rt, err := NewRuntime(t.TempDir(), s, WithProcessEngine(ProcessConfig{Command: "true"}))
	require.NoError(t, err)
	defer rt.Close()

	require.NotEmpty(t, rt.SettingsFile())
	data, err := os.ReadFile(rt.SettingsFile())
	require.NoError(t, err)

	var doc struct {
		Settings map[string]string `yaml:"settings"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, map[string]string{"b@key": "2", "a@key": "1"}, doc.Settings)
	assert.IsType(t, &ProcessEngine{}, rt.Engine())
}

func TestNewRuntime_WithoutSettings(t *testing.T) {
	rt, err := NewRuntime(t.TempDir(), nil, WithProcessEngine(ProcessConfig{Command: "true"}))
	require.NoError(t, err)
	defer rt.Close()

	assert.Empty(t, rt.SettingsFile())
	assert.Equal(t, 0, rt.Settings().Len())
}

func TestNewRuntime_RequiresEngine(t *testing.T) {
	root := t.TempDir()
	_, err := NewRuntime(root, nil)
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory is removed again")
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt, err := NewRuntime(t.TempDir(), nil, WithProcessEngine(ProcessConfig{Command: "true"}))
	require.NoError(t, err)

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.True(t, rt.Closed())

	_, err = os.Stat(rt.WorkDir())
	assert.True(t, os.IsNotExist(err))
}
