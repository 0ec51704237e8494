package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	v.SetDefault("devMode", false)
	v.SetDefault("logLevel", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.frontendURL", "http://localhost:3000")

	// Spotify
	v.SetDefault("spotify.clientID", "")
	v.SetDefault("spotify.clientSecretParam", "/wrapped/spotify-client-secret")
	v.SetDefault("spotify.redirectURL", "http://localhost:8080/auth/callback")
	v.SetDefault("spotify.apiBaseURL", "https://api.spotify.com/v1")
	v.SetDefault("spotify.timeout", 10)

	// Session
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.table", "SpotifySessions")
	v.SetDefault("session.lockTable", "RefreshLocks")
	v.SetDefault("session.kmsKeyID", "alias/wrapped-token-key")
	v.SetDefault("session.refreshTimeout", 10)
	v.SetDefault("session.lockWait", 5)

	// Redis
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache
	v.SetDefault("cache.ttl", 300)
	v.SetDefault("cache.sweepInterval", 60)
	v.SetDefault("cache.fetchTimeout", 15)
	v.SetDefault("cache.maxFanOut", 10)

	// Insights
	v.SetDefault("insights.baseURL", "https://api.openai.com/v1")
	v.SetDefault("insights.apiKeyParam", "/wrapped/llm-api-key")
	v.SetDefault("insights.model", "gpt-4o-mini")
	v.SetDefault("insights.timeout", 8)

	// Auth
	v.SetDefault("auth.jwtSecretParam", "/wrapped/jwt-secret")
	v.SetDefault("auth.originSecretParam", "/wrapped/api-gateway-secret")
}
