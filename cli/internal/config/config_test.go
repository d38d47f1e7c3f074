package config_test

import (
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/cli/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("backend", "", "")
	fs.String("dsn", "", "")
	fs.String("dialect", "", "")
	fs.Duration("ttl", 0, "")
	fs.String("cache-dir", "", "")
	fs.Bool("debug", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad(t *testing.T) {
	config.AppFs = afero.NewMemMapFs()
	t.Setenv("EXPRSQL_DSN", "file:test.db")
	t.Setenv("DATABASE_URL", "")

	cfg, err := config.Load(flags(t, "--backend", "postgres", "--ttl", "30s"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, "file:test.db", cfg.DSN)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.False(t, cfg.Debug)
}

func TestLoad_Defaults(t *testing.T) {
	config.AppFs = afero.NewMemMapFs()
	t.Setenv("EXPRSQL_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/app")

	cfg, err := config.Load(flags(t))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, "postgres://localhost/app", cfg.DSN)
}
