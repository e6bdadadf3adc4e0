package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Db       DbConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  string         `yaml:"storage"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Executor ExecutorConfig `yaml:"executor"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	ReadTimeout  int      `yaml:"read_timeout"`  // seconds
	WriteTimeout int      `yaml:"write_timeout"` // seconds
	IdleTimeout  int      `yaml:"idle_timeout"`  // seconds
	CORSOrigins  []string `yaml:"cors_origins"`
}

type DbConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig enables the route lookup cache when Address is set.
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type SandboxConfig struct {
	WorkspaceRoot      string `yaml:"workspace_root"`
	KillTimeoutSeconds int    `yaml:"kill_timeout_seconds"`
	PullImages         bool   `yaml:"pull_images"`
}

type ExecutorConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LimiterConfig struct {
	GlobalRPS     float64 `yaml:"global_rps"`
	PerIPRPS      float64 `yaml:"per_ip_rps"`
	PerIPBurst    int     `yaml:"per_ip_burst"`
	MaxConcurrent int     `yaml:"max_concurrent"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "3000",
			ReadTimeout:  15,
			WriteTimeout: 330,
			IdleTimeout:  60,
		},
		Db: DbConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "fnrunner",
			Name:    "fnrunner",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			CacheTTLSeconds: 60,
		},
		Storage: StoragePostgres,
		Sandbox: SandboxConfig{
			WorkspaceRoot:      filepath.Join(os.TempDir(), "fnrunner"),
			KillTimeoutSeconds: 10,
			PullImages:         true,
		},
		Executor: ExecutorConfig{
			Workers:   32,
			QueueSize: 256,
		},
		Limiter: LimiterConfig{
			GlobalRPS:     100,
			PerIPRPS:      10,
			PerIPBurst:    20,
			MaxConcurrent: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig layers defaults, the YAML file at path (optional) and FNRUNNER_*
// environment variables, in that order.
func LoadConfig(path string) (*Config, error) {
	conf := Default()

	if path == "" {
		path = os.Getenv("FNRUNNER_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, conf); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := conf.applyEnv(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(conf.Sandbox.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	conf.Sandbox.WorkspaceRoot = root

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = envOr("FNRUNNER_PORT", envOr("PORT", c.Server.Port))
	if origins := os.Getenv("FNRUNNER_CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = strings.Split(origins, ",")
	}

	c.Db.Host = envOr("FNRUNNER_DB_HOST", c.Db.Host)
	c.Db.User = envOr("FNRUNNER_DB_USER", c.Db.User)
	c.Db.Password = envOr("FNRUNNER_DB_PASSWORD", c.Db.Password)
	c.Db.Name = envOr("FNRUNNER_DB_NAME", c.Db.Name)
	c.Db.SSLMode = envOr("FNRUNNER_DB_SSLMODE", c.Db.SSLMode)

	c.Redis.Address = envOr("FNRUNNER_REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = envOr("FNRUNNER_REDIS_PASSWORD", c.Redis.Password)

	c.Storage = envOr("FNRUNNER_STORAGE", c.Storage)
	c.Sandbox.WorkspaceRoot = envOr("FNRUNNER_WORKSPACE_ROOT", c.Sandbox.WorkspaceRoot)

	c.Log.Level = envOr("FNRUNNER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("FNRUNNER_LOG_FORMAT", c.Log.Format)

	ints := []struct {
		key string
		dst *int
	}{
		{"FNRUNNER_DB_PORT", &c.Db.Port},
		{"FNRUNNER_REDIS_DB", &c.Redis.DB},
		{"FNRUNNER_WORKERS", &c.Executor.Workers},
		{"FNRUNNER_QUEUE_SIZE", &c.Executor.QueueSize},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.key, err)
		}
		*i.dst = n
	}

	if v := os.Getenv("FNRUNNER_PULL_IMAGES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FNRUNNER_PULL_IMAGES: %w", err)
		}
		c.Sandbox.PullImages = b
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.Storage != StoragePostgres && c.Storage != StorageMemory:
		return fmt.Errorf("storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	case c.Server.Port == "":
		return fmt.Errorf("server port is required")
	case c.Executor.Workers <= 0:
		return fmt.Errorf("executor workers must be positive, got %d", c.Executor.Workers)
	case c.Executor.QueueSize < 0:
		return fmt.Errorf("executor queue size must not be negative, got %d", c.Executor.QueueSize)
	case c.Sandbox.KillTimeoutSeconds <= 0:
		return fmt.Errorf("sandbox kill timeout must be positive, got %d", c.Sandbox.KillTimeoutSeconds)
	case c.Limiter.MaxConcurrent <= 0:
		return fmt.Errorf("limiter max concurrent must be positive, got %d", c.Limiter.MaxConcurrent)
	case c.Log.Format != "console" && c.Log.Format != "json":
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
