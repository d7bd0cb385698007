package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: memory
activation:
  defaultGraceDays: 14
jwt:
  secret: from-file
`), 0o600))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Activation.DefaultGraceDays)
	assert.Equal(t, 5, cfg.Activation.KeyGenerationAttempts)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 12*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "@every 1h", cfg.Worker.GraceScanSchedule)
	assert.Equal(t, "8080", cfg.Server.Port)
}
