package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/identra/identra/pkg/logging"
)

type config struct {
	Database    databaseConfig
	Log         logging.Config
	NATS        natsConfig
	Projections projectionsConfig
	Cache       cacheConfig
	Logstore    logstoreConfig

	// DefaultDomain is the suffix of generated org domains.
	DefaultDomain string `mapstructure:"default_domain"`
}

type databaseConfig struct {
	Path         string
	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

type natsConfig struct {
	Enabled  bool
	Embedded bool
	URL      string
	StoreDir string `mapstructure:"store_dir"`
}

type projectionsConfig struct {
	BatchSize        uint64        `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxErrors        uint64        `mapstructure:"max_errors"`
	TransientRetries uint64        `mapstructure:"transient_retries"`
	EnableLocking    bool          `mapstructure:"enable_locking"`
	LockDir          string        `mapstructure:"lock_dir"`
}

type cacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type logstoreConfig struct {
	MaxBulkSize  int           `mapstructure:"max_bulk_size"`
	MaxFrequency time.Duration `mapstructure:"max_frequency"`
}

// loadConfig reads the YAML config file and IDENTRA_* env overrides.
func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("identra")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/identra")
	}

	v.SetEnvPrefix("IDENTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", "identra.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.embedded", true)
	v.SetDefault("nats.store_dir", "nats-data")
	v.SetDefault("projections.batch_size", 200)
	v.SetDefault("projections.poll_interval", time.Second)
	v.SetDefault("projections.max_errors", 10)
	v.SetDefault("projections.transient_retries", 3)
	v.SetDefault("projections.lock_dir", ".")
	v.SetDefault("cache.ttl", 5*time.Second)
	v.SetDefault("logstore.max_bulk_size", 100)
	v.SetDefault("logstore.max_frequency", time.Second)
	v.SetDefault("default_domain", "localhost")

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
