package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if !c.DevMode && c.Spotify.ClientID == "" {
		return errors.New("spotify.clientID must be set outside dev mode")
	}
	if c.Spotify.Timeout < 1 {
		return errors.New("spotify timeout must be at least 1 second")
	}

	switch strings.ToLower(c.Session.Backend) {
	case "memory":
	case "dynamodb":
		if c.Session.Table == "" {
			return errors.New("session.table must be set for the dynamodb backend")
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for the redis backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s. Must be 'memory', 'dynamodb' or 'redis'", c.Session.Backend)
	}
	if c.Session.RefreshTimeout < 1 {
		return errors.New("refresh timeout must be at least 1 second")
	}

	if c.Cache.TTL < 1 {
		return errors.New("cache TTL must be at least 1 second")
	}
	if c.Cache.SweepInterval < 0 {
		return errors.New("cache sweep interval must not be negative")
	}
	if c.Cache.MaxFanOut < 1 || c.Cache.MaxFanOut > 10 {
		return errors.New("cache maxFanOut must be between 1 and 10")
	}

	if c.Insights.Timeout < 1 {
		return errors.New("insights timeout must be at least 1 second")
	}

	return nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("devMode", "DEV_MODE")
	v.BindEnv("logLevel", "LOG_LEVEL")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.frontendURL", "FRONTEND_URL")

	// Spotify
	v.BindEnv("spotify.clientID", "SPOTIFY_CLIENT_ID")
	v.BindEnv("spotify.clientSecretParam", "SPOTIFY_CLIENT_SECRET_PARAM")
	v.BindEnv("spotify.redirectURL", "SPOTIFY_REDIRECT_URL")

	// Session
	v.BindEnv("session.backend", "SESSION_BACKEND")
	v.BindEnv("session.table", "SESSIONS_TABLE")
	v.BindEnv("session.lockTable", "REFRESH_LOCKS_TABLE")
	v.BindEnv("session.kmsKeyID", "KMS_KEY_ID")

	// Redis
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Insights
	v.BindEnv("insights.baseURL", "LLM_BASE_URL")
	v.BindEnv("insights.apiKeyParam", "LLM_API_KEY_PARAM")
	v.BindEnv("insights.model", "LLM_MODEL")

	// Auth
	v.BindEnv("auth.jwtSecretParam", "JWT_SECRET_PARAM")
	v.BindEnv("auth.originSecretParam", "API_GATEWAY_SECRET_PARAM")
}
