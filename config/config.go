package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tasktracker/storage"
)

const EnvPrefix = "TASKS"

// Backends and sync modes understood by Config.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendTable  = "table"
	BackendMemory = "memory"

	SyncStub  = "stub"
	SyncRedis = "redis"
	SyncQueue = "queue"
)

type Config struct {
	Backend                 string        `mapstructure:"backend"`
	DataDir                 string        `mapstructure:"data_dir"`
	StorageKey              string        `mapstructure:"storage_key"`
	RedisURL                string        `mapstructure:"redis_url"`
	StorageConnectionString string        `mapstructure:"storage_connection_string"`
	TasksTable              string        `mapstructure:"tasks_table"`
	SyncMode                string        `mapstructure:"sync_mode"`
	SyncChannel             string        `mapstructure:"sync_channel"`
	SyncQueue               string        `mapstructure:"sync_queue"`
	SyncWorkers             int           `mapstructure:"sync_workers"`
	SyncBuffer              int           `mapstructure:"sync_buffer"`
	SyncTimeout             time.Duration `mapstructure:"sync_timeout"`
	SyncHandoffTimeout      time.Duration `mapstructure:"sync_handoff_timeout"`
	PersistTimeout          time.Duration `mapstructure:"persist_timeout"`
	ListenAddr              string        `mapstructure:"listen_addr"`
	Debug                   bool          `mapstructure:"debug"`
}

// New returns a viper instance with defaults and TASKS_* environment
// binding. DEBUG is honored alongside TASKS_DEBUG.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend", BackendFile)
	v.SetDefault("data_dir", ".tasks")
	v.SetDefault("storage_key", storage.DefaultKey)
	v.SetDefault("redis_url", "")
	v.SetDefault("storage_connection_string", "")
	v.SetDefault("tasks_table", "tasks")
	v.SetDefault("sync_mode", SyncStub)
	v.SetDefault("sync_channel", "tasks.changed")
	v.SetDefault("sync_queue", "tasks-sync")
	v.SetDefault("sync_workers", 1)
	v.SetDefault("sync_buffer", 64)
	v.SetDefault("sync_timeout", 30*time.Second)
	v.SetDefault("sync_handoff_timeout", 15*time.Millisecond)
	v.SetDefault("persist_timeout", 5*time.Second)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("debug", EnvPrefix+"_DEBUG", "DEBUG")
	return v
}

// Load reads the optional config file into v and decodes the result. A
// missing file is an error only when path is set explicitly.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tasks")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tasks")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.SyncMode = strings.ToLower(strings.TrimSpace(cfg.SyncMode))
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.DataDir == "" {
			return errors.New("data_dir is required for the file backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for the redis backend")
		}
	case BackendTable:
		if c.StorageConnectionString == "" || c.TasksTable == "" {
			return errors.New("storage_connection_string and tasks_table are required for the table backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.SyncMode {
	case SyncStub:
	case SyncRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for redis sync")
		}
	case SyncQueue:
		if c.StorageConnectionString == "" || c.SyncQueue == "" {
			return errors.New("storage_connection_string and sync_queue are required for queue sync")
		}
	default:
		return fmt.Errorf("unknown sync_mode %q", c.SyncMode)
	}

	if c.SyncWorkers <= 0 || c.SyncBuffer <= 0 {
		return errors.New("sync_workers and sync_buffer must be positive")
	}
	return nil
}
