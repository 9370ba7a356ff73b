package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, "admin", cfg.Exchange.AdminUsername)
	assert.Equal(t, time.Minute, cfg.Store.SnapshotInterval)

	cash, err := cfg.StartingCash()
	require.NoError(t, err)
	assert.Equal(t, "10000", cash.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 99999\n"},
		{"negative cash", "exchange:\n  starting_cash: \"-1\"\n"},
		{"unparsable cash", "exchange:\n  starting_cash: lots\n"},
		{"empty admin", "exchange:\n  admin_username: \"\"\n"},
		{"zero interval", "store:\n  snapshot_interval: 0s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.body))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}
