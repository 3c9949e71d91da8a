package core

import (
	"time"
)

type Config struct {
	Spotify   SpotifyConfig
	Recognize RecognizeConfig
	Store     StoreConfig
	Server    ServerConfig
	Log       LogConfig
	App       AppConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the accounts endpoint, used by tests.
	TokenURL string
}

type RecognizeConfig struct {
	// APIToken is the recognition provider (AudD-style) API token. The
	// fallback extractor is disabled when empty.
	APIToken string
	BaseURL  string
}

type StoreConfig struct {
	Path string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	// DefaultStorefront is the regional store code used for storefront-scoped
	// platforms when the caller does not pass one.
	DefaultStorefront string
}

func DefaultConfig() *Config {
	return &Config{
		Recognize: RecognizeConfig{
			BaseURL: "https://api.audd.io",
		},
		Store: StoreConfig{
			Path: "./tracklink.db",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			DefaultStorefront: "us",
		},
	}
}
