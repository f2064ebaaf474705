// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is environment (CONNECT_*) over the YAML file over defaults.
// Unknown YAML keys are rejected.
package config

import (
	"time"

	"github.com/ManuGH/connectbridge/internal/bridge"
	"github.com/ManuGH/connectbridge/internal/host"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/telemetry"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	LogLevel  string              `yaml:"log_level"`
	Auth      AuthConfig          `yaml:"auth"`
	Player    spirc.PlayerConfig  `yaml:"player"`
	Connect   spirc.ConnectConfig `yaml:"connect"`
	Bridge    BridgeConfig        `yaml:"bridge"`
	Tokens    TokensConfig        `yaml:"tokens"`
	API       APIConfig           `yaml:"api"`
	Telemetry telemetry.Config    `yaml:"telemetry"`

	// Version is stamped at build time, never read from file.
	Version string `yaml:"-"`
}

// AuthConfig holds the session credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	AuthType string `yaml:"auth_type"`
}

// Credentials converts to the engine's credential type.
func (a AuthConfig) Credentials() spirc.Credentials {
	return spirc.Credentials{Username: a.Username, Password: a.Password, AuthType: a.AuthType}
}

// BridgeConfig tunes the bridge.
type BridgeConfig struct {
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ListenerBuffer int           `yaml:"listener_buffer"`
	// Virtual runs the in-process engine instead of a real one.
	Virtual bool `yaml:"virtual"`
}

// TokensConfig controls token caching.
type TokensConfig struct {
	// Save enables the token cache.
	Save              bool `yaml:"save"`
	tokenstore.Config `yaml:",inline"`
	// Scopes overrides the default scopes requested by Token and Load.
	Scopes []string `yaml:"scopes"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WebAPIBaseURL overrides the Web API origin used by load.
	WebAPIBaseURL string `yaml:"webapi_base_url"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Player:   spirc.DefaultPlayerConfig(),
		Connect:  spirc.DefaultConnectConfig(),
		Bridge: BridgeConfig{
			ReadyTimeout:   bridge.DefaultReadyTimeout,
			ListenerBuffer: host.DefaultListenerBuffer,
		},
		Tokens: TokensConfig{
			Config: tokenstore.Config{Backend: tokenstore.BackendMemory},
		},
		API: APIConfig{
			Listen:          "127.0.0.1:8089",
			RateLimit:       120,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: telemetry.Config{
			ServiceName:  "connectbridge",
			Environment:  "production",
			ExporterType: telemetry.ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
