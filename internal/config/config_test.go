package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SAFETYFLASH_SESSION_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 12*time.Hour, cfg.SessionMaxAge)
	require.Equal(t, "audit.log", cfg.AuditLogPath)
	require.Equal(t, "test-key", cfg.SessionKey)
}

func TestLoad_RequiresSessionKey(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAFETYFLASH_SESSION_KEY", "k")
	t.Setenv("SAFETYFLASH_LISTEN_ADDR", ":9999")
	t.Setenv("SAFETYFLASH_SESSION_TIMEOUT", "45m")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 45*time.Minute, cfg.SessionTimeout)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("SAFETYFLASH_SESSION_KEY", "k")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":7070\"\naudit_log_path: /var/log/safetyflash/audit.log\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddr)
	require.Equal(t, "/var/log/safetyflash/audit.log", cfg.AuditLogPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
