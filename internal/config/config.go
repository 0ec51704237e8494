// Package config loads application settings from defaults, an optional
// config.<env>.yaml file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	DevMode  bool
	LogLevel string

	Server   ServerConfig
	Spotify  SpotifyConfig
	Session  SessionConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Insights InsightsConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port        int
	FrontendURL string
}

type SpotifyConfig struct {
	ClientID          string
	ClientSecretParam string
	RedirectURL       string
	APIBaseURL        string
	Timeout           int // Seconds
}

type SessionConfig struct {
	Backend        string // memory, dynamodb or redis
	Table          string
	LockTable      string
	KMSKeyID       string
	RefreshTimeout int // Seconds
	LockWait       int // Seconds
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	TTL           int // Seconds
	SweepInterval int // Seconds, 0 disables the janitor
	FetchTimeout  int // Seconds
	MaxFanOut     int
}

type InsightsConfig struct {
	BaseURL     string
	APIKeyParam string
	Model       string
	Timeout     int // Seconds
}

type AuthConfig struct {
	JWTSecretParam    string
	OriginSecretParam string
}

// Load reads configuration for env. The config file is optional; paths
// defaults to ./configs and the working directory.
func Load(env string, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("WRAPPED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	cfg.Env = env

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c CacheConfig) TTLDuration() time.Duration              { return seconds(c.TTL) }
func (c CacheConfig) SweepDuration() time.Duration            { return seconds(c.SweepInterval) }
func (c CacheConfig) FetchTimeoutDuration() time.Duration     { return seconds(c.FetchTimeout) }
func (c SpotifyConfig) TimeoutDuration() time.Duration        { return seconds(c.Timeout) }
func (c InsightsConfig) TimeoutDuration() time.Duration       { return seconds(c.Timeout) }
func (c SessionConfig) RefreshTimeoutDuration() time.Duration { return seconds(c.RefreshTimeout) }
func (c SessionConfig) LockWaitDuration() time.Duration       { return seconds(c.LockWait) }
