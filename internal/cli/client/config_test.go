package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempConfig points the global config at a temp dir for the test.
func useTempConfig(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "supportbot", "config.json")

	originalGetConfigDir := getConfigDirFunc
	originalGetConfigPath := getConfigPathFunc
	t.Cleanup(func() {
		getConfigDirFunc = originalGetConfigDir
		getConfigPathFunc = originalGetConfigPath
	})

	getConfigDirFunc = func() (string, error) { return filepath.Dir(configPath), nil }
	getConfigPathFunc = func() (string, error) { return configPath, nil }
	return configPath
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "supportbot"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, "config.json"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useTempConfig(t)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid json}"), 0o600))

	_, err := LoadGlobalConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_RoundTrip(t *testing.T) {
	configPath := useTempConfig(t)

	want := &GlobalConfig{APIKey: "sk-support-0123456789", APIURL: "https://bot.example.com"}
	require.NoError(t, SaveGlobalConfig(want))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "sk-support-0123456789", onDisk["api_key"])

	got, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := useTempConfig(t)

	// missing file is not an error
	require.NoError(t, DeleteGlobalConfig())

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "sk-support-0123456789"}))
	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))
}

func TestIsValidAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sk-support-0123456789", true},
		{"0123456789abcdef", true},
		{"short", false},
		{"", false},
		{"has a space in the middle", false},
		{"trailing-newline-key\n", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidAPIKey(tt.key), "key %q", tt.key)
	}
}

func TestGetCredentialSource(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, "env-key-0123456789")
		t.Setenv(envAPIURL, "http://env:8080")

		source, key, url := GetCredentialSource("flag-key-0123456789", "http://flag:8080")
		assert.Equal(t, SourceFlag, source)
		assert.Equal(t, "flag-key-0123456789", key)
		assert.Equal(t, "http://flag:8080", url)
	})

	t.Run("flag key with env url", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, "")
		t.Setenv(envAPIURL, "http://env:8080")

		source, _, url := GetCredentialSource("flag-key-0123456789", "")
		assert.Equal(t, SourceFlag, source)
		assert.Equal(t, "http://env:8080", url)
	})

	t.Run("env", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, "env-key-0123456789")
		t.Setenv(envAPIURL, "")

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceEnv, source)
		assert.Equal(t, "env-key-0123456789", key)
		assert.Equal(t, defaultAPIURL, url)
	})

	t.Run("global config", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, "")
		t.Setenv(envAPIURL, "")
		require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "cfg-key-0123456789", APIURL: "http://cfg:8080"}))

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceGlobalConfig, source)
		assert.Equal(t, "cfg-key-0123456789", key)
		assert.Equal(t, "http://cfg:8080", url)
	})

	t.Run("none", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, "")
		t.Setenv(envAPIURL, "")

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceNone, source)
		assert.Empty(t, key)
		assert.Empty(t, url)
	})
}
