package config

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type FailoverConfig struct {
	Scheme         string   `mapstructure:"scheme"`
	Targets        []string `mapstructure:"targets"`
	Cooldown       string   `mapstructure:"cooldown"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	RetryRate      float64  `mapstructure:"retry_rate"`
	RetryBurst     int      `mapstructure:"retry_burst"`
	RequestTimeout string   `mapstructure:"request_timeout"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Failover FailoverConfig `mapstructure:"failover"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("failover.scheme", "http")
	v.SetDefault("failover.targets", []string{"localhost:8500"})
	v.SetDefault("failover.cooldown", "30s")
	v.SetDefault("failover.max_attempts", 3)
	v.SetDefault("failover.retry_rate", 50.0)
	v.SetDefault("failover.retry_burst", 10)
	v.SetDefault("failover.request_timeout", "30s")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// CooldownDuration returns the parsed blacklist cooldown.
func (c *Config) CooldownDuration() time.Duration {
	d, _ := time.ParseDuration(c.Failover.Cooldown)
	return d
}

// RequestTimeoutDuration returns the parsed per-request timeout. Zero means
// no timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Failover.RequestTimeout)
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Failover,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(FailoverConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a FailoverConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Scheme,
						validation.Required,
						validation.In("http", "https"),
					),
					validation.Field(&fc.Targets,
						validation.Required,
						validation.Length(1, 0),
						validation.Each(validation.By(validateTarget)),
					),
					validation.Field(&fc.Cooldown,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&fc.MaxAttempts,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&fc.RetryRate,
						validation.Required,
						validation.Min(0.0).Exclusive(),
					),
					validation.Field(&fc.RetryBurst,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&fc.RequestTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

// validateTarget accepts host:port pairs with a non-empty host and a port in
// range. Unlike the listen address, a target must name a host.
func validateTarget(value interface{}) error {
	target, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if host == "" {
		return validation.NewError("validation_missing_host", "target must have a host")
	}

	if err := is.Host.Validate(host); err != nil {
		return validation.NewError("validation_invalid_host", "invalid host")
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return validation.NewError("validation_invalid_port", "port must be between 1 and 65535")
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "duration cannot be negative")
	}

	return nil
}
