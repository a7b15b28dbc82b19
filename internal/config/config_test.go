package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_ProducesValidConfig(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidate_MissingDatabasePath(t *testing.T) {
	cfg := Defaults()
	cfg.DatabasePath = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_MissingLocalPatchBurnerDir(t *testing.T) {
	cfg := Defaults()
	cfg.LocalPatchBurnerDir = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_NonPositiveTickInterval(t *testing.T) {
	cfg := Defaults()
	cfg.TickInterval = 0
	assert.Error(t, Validate(cfg))
}

func TestWriteDefaultConfig_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "database_path")
	assert.Contains(t, string(body), "tick_interval")
}

func TestDefaultConfigTemplate_RoundTripsTickInterval(t *testing.T) {
	d := Defaults()
	assert.Contains(t, DefaultConfigTemplate(), d.TickInterval.String())
	assert.Equal(t, 30*time.Second, d.TickInterval)
}
