package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainSettings = `settings:
  proxyUser: bob
  password: s3cret
`

func TestSettingsEncryptAndCheck(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(plain, []byte(plainSettings), 0o600))

	encrypted, err := executeCmd(t, "settings", "encrypt", plain, "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, encrypted, "encrypted:")
	assert.NotContains(t, encrypted, "s3cret")

	encPath := filepath.Join(dir, "settings.enc.yaml")
	_, err = executeCmd(t, "settings", "encrypt", plain, "--password", "pw", "-O", encPath)
	require.NoError(t, err)

	out, err := executeCmd(t, "settings", "check", encPath, "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "2 settings")
	assert.Contains(t, out, "proxyUser=bob\n")
	assert.Contains(t, out, "password=******\n")
	assert.NotContains(t, out, "s3cret")

	_, err = executeCmd(t, "settings", "check", encPath, "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfiguration, getExitCode(err))
}

func TestSettingsPasswordFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(plain, []byte(plainSettings), 0o600))
	encPath := filepath.Join(dir, "settings.enc.yaml")

	t.Setenv("SUIDRIVER_ENGINE_SETTINGS_PASSWORD", "from-env")
	_, err := executeCmd(t, "settings", "encrypt", plain, "-O", encPath)
	require.NoError(t, err)

	t.Setenv("SUIDRIVER_ENGINE_SETTINGS_FILE", encPath)
	out, err := executeCmd(t, "settings", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "2 settings")
}

func TestSettingsErrors(t *testing.T) {
	t.Setenv("SUIDRIVER_ENGINE_SETTINGS_PASSWORD", "")
	t.Setenv("SUIDRIVER_ENGINE_SETTINGS_FILE", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "encrypt without password", args: []string{"settings", "encrypt", "x.yaml"}, want: "no password"},
		{name: "encrypt missing file", args: []string{"settings", "encrypt", "missing.yaml", "--password", "pw"}, want: "failed to read settings"},
		{name: "check without file", args: []string{"settings", "check"}, want: "no settings file"},
		{name: "encrypt needs file", args: []string{"settings", "encrypt"}, want: "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
