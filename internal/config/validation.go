// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
)

// minReadyTimeout rejects configurations that can never bootstrap.
const minReadyTimeout = 100 * time.Millisecond

// Validate checks the whole configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		addf("log_level: unknown level %q", cfg.LogLevel)
	}
	if !cfg.Bridge.Virtual && cfg.Auth.Username == "" {
		addf("auth.username: required unless bridge.virtual is set")
	}

	add(cfg.Player.Validate())
	add(cfg.Connect.Validate())

	if cfg.Bridge.ReadyTimeout < minReadyTimeout {
		addf("bridge.ready_timeout: must be at least %s, got %s", minReadyTimeout, cfg.Bridge.ReadyTimeout)
	}
	if cfg.Bridge.CommandTimeout < 0 {
		addf("bridge.command_timeout: must not be negative")
	}
	if cfg.Bridge.ListenerBuffer < 0 {
		addf("bridge.listener_buffer: must not be negative")
	}

	if cfg.Tokens.Save {
		add(cfg.Tokens.Config.Validate())
	}

	if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
		addf("api.listen: %v", err)
	}
	if cfg.API.RateLimit < 0 {
		addf("api.rate_limit: must not be negative")
	}
	if cfg.API.RateLimit > 0 && cfg.API.RateWindow <= 0 {
		addf("api.rate_window: must be positive when rate_limit is set")
	}

	if cfg.API.WebAPIBaseURL != "" {
		if err := validateBaseURL(cfg.API.WebAPIBaseURL); err != nil {
			addf("api.webapi_base_url: %v", err)
		}
	}

	add(cfg.Telemetry.Validate())

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// validateBaseURL accepts absolute http(s) URLs whose host is a valid IP or
// IDNA lookup name.
func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("must not include userinfo")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("host is empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return fmt.Errorf("invalid host %q: %w", host, err)
	}
	return nil
}
