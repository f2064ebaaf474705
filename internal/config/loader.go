// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every variable the last Load consulted.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path means environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

// Load parses the file strictly, applies environment overrides and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return AppConfig{}, fmt.Errorf("%w: %s: %w", ErrConfigFile, l.configPath, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("%w: %s: %w", ErrConfigFile, l.configPath, err)
		}
	}

	l.applyEnv(&cfg)
	cfg.Connect = cfg.Connect.Normalized()

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (l *Loader) env(name string) string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) applyEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(l.env("LOG_LEVEL"), cfg.LogLevel)

	cfg.Auth.Username = ParseString(l.env("USERNAME"), cfg.Auth.Username)
	cfg.Auth.Password = ParseString(l.env("PASSWORD"), cfg.Auth.Password)
	cfg.Auth.AuthType = ParseString(l.env("AUTH_TYPE"), cfg.Auth.AuthType)

	cfg.Player.Backend = ParseString(l.env("PLAYER_BACKEND"), cfg.Player.Backend)
	cfg.Player.Bitrate = ParseString(l.env("PLAYER_BITRATE"), cfg.Player.Bitrate)
	cfg.Player.Gapless = ParseBool(l.env("PLAYER_GAPLESS"), cfg.Player.Gapless)
	cfg.Player.Normalization.Enabled = ParseBool(l.env("PLAYER_NORMALIZATION"), cfg.Player.Normalization.Enabled)
	cfg.Player.Normalization.Pregain = ParseFloat(l.env("PLAYER_NORMALIZATION_PREGAIN"), cfg.Player.Normalization.Pregain)

	cfg.Connect.Name = ParseString(l.env("DEVICE_NAME"), cfg.Connect.Name)
	cfg.Connect.DeviceType = ParseString(l.env("DEVICE_TYPE"), cfg.Connect.DeviceType)
	if v := ParseInt(l.env("INITIAL_VOLUME"), int(cfg.Connect.InitialVolume)); v >= 0 && v <= 100 {
		cfg.Connect.InitialVolume = uint16(v)
	}

	cfg.Bridge.ReadyTimeout = ParseDuration(l.env("READY_TIMEOUT"), cfg.Bridge.ReadyTimeout)
	cfg.Bridge.CommandTimeout = ParseDuration(l.env("COMMAND_TIMEOUT"), cfg.Bridge.CommandTimeout)
	cfg.Bridge.ListenerBuffer = ParseInt(l.env("LISTENER_BUFFER"), cfg.Bridge.ListenerBuffer)
	cfg.Bridge.Virtual = ParseBool(l.env("VIRTUAL"), cfg.Bridge.Virtual)

	cfg.Tokens.Save = ParseBool(l.env("SAVE_TOKEN"), cfg.Tokens.Save)
	cfg.Tokens.Backend = ParseString(l.env("TOKEN_BACKEND"), cfg.Tokens.Backend)
	cfg.Tokens.Path = ParseString(l.env("TOKEN_PATH"), cfg.Tokens.Path)
	cfg.Tokens.RedisAddr = ParseString(l.env("TOKEN_REDIS_ADDR"), cfg.Tokens.RedisAddr)
	cfg.Tokens.RedisPassword = ParseString(l.env("TOKEN_REDIS_PASSWORD"), cfg.Tokens.RedisPassword)
	if scopes := ParseString(l.env("TOKEN_SCOPES"), ""); scopes != "" {
		cfg.Tokens.Scopes = splitList(scopes)
	}

	cfg.API.Listen = ParseString(l.env("LISTEN"), cfg.API.Listen)
	cfg.API.RateLimit = ParseInt(l.env("RATE_LIMIT"), cfg.API.RateLimit)
	cfg.API.RateWindow = ParseDuration(l.env("RATE_WINDOW"), cfg.API.RateWindow)
	cfg.API.WebAPIBaseURL = ParseString(l.env("WEBAPI_BASE_URL"), cfg.API.WebAPIBaseURL)

	cfg.Telemetry.Enabled = ParseBool(l.env("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString(l.env("TELEMETRY_EXPORTER"), cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString(l.env("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.env("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
	cfg.Telemetry.ServiceVersion = cfg.Version
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
