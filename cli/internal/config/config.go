package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// Config holds the CLI configuration.
type Config struct {
	Backend  string
	DSN      string
	Dialect  string
	TTL      time.Duration
	CacheDir string
	Debug    bool
}

// Load reads configuration from .exprsql.yaml, EXPRSQL_* environment
// variables, .env files and the bound flags, in increasing priority.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v.SetConfigName(".exprsql")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "exprsql"))

	v.SetEnvPrefix("EXPRSQL")
	v.AutomaticEnv()

	v.SetDefault("backend", "sqlite")
	v.SetDefault("ttl", 5*time.Minute)

	// A missing config file is fine.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	// .env.local wins over .env
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	if flags != nil {
		for _, name := range []string{"backend", "dsn", "dialect", "ttl", "cache-dir", "debug"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key(name), f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		Backend:  v.GetString("backend"),
		DSN:      v.GetString("dsn"),
		Dialect:  v.GetString("dialect"),
		TTL:      v.GetDuration("ttl"),
		CacheDir: v.GetString("cache_dir"),
		Debug:    v.GetBool("debug"),
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.CacheDir != "" {
		if cfg.CacheDir, err = homedir.Expand(cfg.CacheDir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func key(flag string) string {
	if flag == "cache-dir" {
		return "cache_dir"
	}
	return flag
}
