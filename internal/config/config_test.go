package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for key := range envMappings {
		name := strings.ToUpper(key)
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, 30*time.Second, cfg.Ollama.Timeout)
	assert.True(t, filepath.IsAbs(cfg.Database.Path))
	assert.Equal(t, "app.db", filepath.Base(cfg.Database.Path))
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "localchat_session", cfg.Session.CookieName)
	assert.Empty(t, cfg.NATS.URL)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, ":5000", cfg.Addr())
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("OLLAMA_API_URL", "http://gpu-box:11434")
	t.Setenv("DATABASE_PATH", "/var/lib/localchat/chat.db")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.URL)
	assert.Equal(t, "/var/lib/localchat/chat.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.Origins)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ollama:\n  url: http://file-host:11434\nserver:\n  port: 9000\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://file-host:11434", cfg.Ollama.URL)
	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over file")
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	cfg.Ollama.URL = " "
	cfg.Session.Secret = ""
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "ollama.url")
	assert.Contains(t, err.Error(), "session.secret")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestUsesDefaultSecret(t *testing.T) {
	cfg := defaultConfig()
	assert.True(t, cfg.UsesDefaultSecret())

	cfg.Session.Secret = "s3cret"
	assert.False(t, cfg.UsesDefaultSecret())
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "ollama.url", envTransformFunc("OLLAMA_API_URL"))
	assert.Equal(t, "session.secret", envTransformFunc("SECRET_KEY"))
	assert.Equal(t, "", envTransformFunc("HOME"))
}
