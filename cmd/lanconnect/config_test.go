package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig(), cfg)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanconnect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  name: from-file
network:
  discovery_port: 1800
pairing:
  timeout: 10s
`), 0o600))

	t.Setenv("LANCONNECT_NETWORK_DISCOVERY_PORT", "1900")
	t.Setenv("LANCONNECT_STORAGE_IN_MEMORY", "true")
	t.Setenv("LANCONNECT_SECURITY_PASSPHRASE", "secret")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Device.Name)
	assert.Equal(t, 1900, cfg.Network.DiscoveryPort)
	assert.Equal(t, 10*time.Second, cfg.Pairing.Timeout.Duration())
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "secret", cfg.Security.Passphrase)
	assert.Equal(t, config.DefaultRegistryConfig(), cfg.Registry)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b ", ","))
	assert.Nil(t, splitAndTrim("", ","))
}
