// Package config loads coderunner settings from coderunner.yaml, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendFirejail = "firejail"
	BackendDocker   = "docker"
)

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds, 0 = none
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // seconds
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type SandboxConfig struct {
	Backend         string        `mapstructure:"backend"`
	Binary          string        `mapstructure:"binary"`
	CompileCPULimit int           `mapstructure:"compile_cpu_limit"`
	WallTimeout     time.Duration `mapstructure:"wall_timeout"`
	Blacklist       []string      `mapstructure:"blacklist"`
	SeccompAllow    []string      `mapstructure:"seccomp_allow"`
	PIDsLimit       int64         `mapstructure:"pids_limit"`
}

// Policy returns the sandbox restrictions described by the config.
func (s SandboxConfig) Policy() sandbox.Policy {
	return sandbox.Policy{
		Blacklist:    s.Blacklist,
		SeccompAllow: s.SeccompAllow,
		PIDsLimit:    s.PIDsLimit,
	}
}

// ExecutorOptions returns the pipeline limits described by the config.
func (s SandboxConfig) ExecutorOptions() executor.Options {
	return executor.Options{
		CompileCPULimit: s.CompileCPULimit,
		WallTimeout:     s.WallTimeout,
	}
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root"` // empty = $TMPDIR/code_runner
}

type AdmissionConfig struct {
	Workers       int `mapstructure:"workers"` // 0 = run every request inline
	QueueCapacity int `mapstructure:"queue_capacity"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	GlobalRPS       float64       `mapstructure:"global_rps"`
	PerIPRPS        float64       `mapstructure:"per_ip_rps"`
	PerIPBurst      int           `mapstructure:"per_ip_burst"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"` // may set X-Forwarded-For; IPs or CIDRs
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Admission AdmissionConfig `mapstructure:"admission"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	policy := sandbox.DefaultPolicy()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 60)

	v.SetDefault("sandbox.backend", BackendFirejail)
	v.SetDefault("sandbox.binary", "firejail")
	v.SetDefault("sandbox.compile_cpu_limit", 30)
	v.SetDefault("sandbox.wall_timeout", time.Duration(0))
	v.SetDefault("sandbox.blacklist", policy.Blacklist)
	v.SetDefault("sandbox.seccomp_allow", policy.SeccompAllow)
	v.SetDefault("sandbox.pids_limit", policy.PIDsLimit)

	v.SetDefault("workspace.root", "")

	v.SetDefault("admission.workers", 0)
	v.SetDefault("admission.queue_capacity", 100)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.global_rps", 100.0)
	v.SetDefault("ratelimit.per_ip_rps", 10.0)
	v.SetDefault("ratelimit.per_ip_burst", 20)
	v.SetDefault("ratelimit.max_concurrent", 50)
	v.SetDefault("ratelimit.cleanup_interval", 5*time.Minute)
	v.SetDefault("ratelimit.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads coderunner.yaml from the working directory or
// /etc/coderunner. Every key can be overridden with a CODERUNNER_ variable,
// e.g. CODERUNNER_SANDBOX_BACKEND=docker. A missing file is not an error.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("coderunner")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/coderunner")
	return load(v)
}

// LoadFile reads the config from an explicit path.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("CODERUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case BackendFirejail, BackendDocker:
	default:
		return fmt.Errorf("invalid sandbox.backend %q: want %s or %s", c.Sandbox.Backend, BackendFirejail, BackendDocker)
	}
	if c.Server.Port == "" {
		return errors.New("server.port must be set")
	}
	if c.Sandbox.CompileCPULimit < 0 {
		return fmt.Errorf("sandbox.compile_cpu_limit must not be negative, got %d", c.Sandbox.CompileCPULimit)
	}
	if c.Sandbox.WallTimeout < 0 {
		return fmt.Errorf("sandbox.wall_timeout must not be negative, got %s", c.Sandbox.WallTimeout)
	}
	if c.Admission.Workers < 0 {
		return fmt.Errorf("admission.workers must not be negative, got %d", c.Admission.Workers)
	}
	if c.Admission.Workers > 0 && c.Admission.QueueCapacity < 1 {
		return fmt.Errorf("admission.queue_capacity must be positive when workers are enabled, got %d", c.Admission.QueueCapacity)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.GlobalRPS <= 0 || c.RateLimit.PerIPRPS <= 0 || c.RateLimit.PerIPBurst < 1 {
			return errors.New("ratelimit rates and burst must be positive")
		}
		if c.RateLimit.CleanupInterval <= 0 {
			return errors.New("ratelimit.cleanup_interval must be positive")
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format %q: want console or json", c.Log.Format)
	}
	return nil
}
