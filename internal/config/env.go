// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/connectbridge/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONNECT_"

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

// lookup reads key and logs where the value came from. Empty variables count
// as unset.
func lookup[T any](key string, def T, parse func(string) (T, error), field func(*zerolog.Event, string, T) *zerolog.Event) T {
	logger := log.WithComponent("config")
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		field(logger.Debug().Str("key", key).Str("source", "default"), "default", def).
			Msg("using default value")
		return def
	}
	v, err := parse(raw)
	if err != nil {
		ev := logger.Warn().Str("key", key)
		if !isSensitive(key) {
			ev = ev.Str("value", raw)
		}
		field(ev, "default", def).Err(err).Msg("invalid environment variable, using default")
		return def
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev.Bool("sensitive", true).Msg("using environment variable")
		return v
	}
	field(ev, "value", v).Msg("using environment variable")
	return v
}

// ParseString reads a string from the environment or returns def.
func ParseString(key, def string) string {
	return lookup(key, def,
		func(s string) (string, error) { return s, nil },
		func(e *zerolog.Event, k string, v string) *zerolog.Event { return e.Str(k, v) })
}

// ParseInt reads an integer from the environment or returns def.
func ParseInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi,
		func(e *zerolog.Event, k string, v int) *zerolog.Event { return e.Int(k, v) })
}

// ParseFloat reads a float from the environment or returns def.
func ParseFloat(key string, def float64) float64 {
	return lookup(key, def,
		func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
		func(e *zerolog.Event, k string, v float64) *zerolog.Event { return e.Float64(k, v) })
}

// ParseDuration reads a Go duration ("5s") from the environment or returns def.
func ParseDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration,
		func(e *zerolog.Event, k string, v time.Duration) *zerolog.Event { return e.Dur(k, v) })
}

// ParseBool reads a boolean from the environment or returns def. It accepts
// true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, def bool) bool {
	return lookup(key, def, parseBool,
		func(e *zerolog.Event, k string, v bool) *zerolog.Event { return e.Bool(k, v) })
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, strconv.ErrSyntax
}
