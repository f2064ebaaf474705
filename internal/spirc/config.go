// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package spirc

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizationConfig controls loudness normalisation.
type NormalizationConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Pregain   float64 `yaml:"pregain"`
	Type      string  `yaml:"type"`   // auto, album, track
	Method    string  `yaml:"method"` // dynamic, basic
	AttackCF  float64 `yaml:"attackCF"`
	KneeDB    float64 `yaml:"kneeDB"`
	ReleaseCF float64 `yaml:"releaseCF"`
	Threshold float64 `yaml:"threshold"`
}

// PlayerConfig configures the playback engine.
type PlayerConfig struct {
	Backend       string              `yaml:"backend"`
	Bitrate       string              `yaml:"bitrate"` // 96, 160, 320
	Gapless       bool                `yaml:"gapless"`
	PassThrough   bool                `yaml:"passThrough"`
	Normalization NormalizationConfig `yaml:"normalization"`
}

// ConnectConfig describes the device announced to remote controllers.
type ConnectConfig struct {
	Name             string `yaml:"name"`
	DeviceType       string `yaml:"deviceType"`
	InitialVolume    uint16 `yaml:"initialVolume"`
	HasVolumeControl bool   `yaml:"hasVolumeControl"`
}

var (
	bitrates             = []string{"96", "160", "320"}
	normalizationTypes   = []string{"auto", "album", "track"}
	normalizationMethods = []string{"dynamic", "basic"}
	deviceTypes          = []string{
		"computer", "tablet", "smartphone", "speaker", "tv", "avr", "stb",
		"audiodongle", "gameconsole", "castaudio", "castvideo", "automobile",
		"smartwatch", "chromebook", "carthing", "homething",
	}
)

// DefaultPlayerConfig returns the engine defaults.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Backend: "rodio",
		Bitrate: "160",
		Gapless: true,
		Normalization: NormalizationConfig{
			Type:      "auto",
			Method:    "dynamic",
			AttackCF:  0.005,
			KneeDB:    1.0,
			ReleaseCF: 0.1,
			Threshold: -2.0,
		},
	}
}

// DefaultConnectConfig returns the device defaults.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{
		Name:             "connectbridge",
		DeviceType:       "computer",
		InitialVolume:    50,
		HasVolumeControl: true,
	}
}

// Validate checks enumerated fields.
func (c PlayerConfig) Validate() error {
	if !slices.Contains(bitrates, c.Bitrate) {
		return fmt.Errorf("player.bitrate: unsupported value %q", c.Bitrate)
	}
	if !slices.Contains(normalizationTypes, c.Normalization.Type) {
		return fmt.Errorf("player.normalization.type: unsupported value %q", c.Normalization.Type)
	}
	if !slices.Contains(normalizationMethods, c.Normalization.Method) {
		return fmt.Errorf("player.normalization.method: unsupported value %q", c.Normalization.Method)
	}
	return nil
}

// Normalized returns c with the device name trimmed and in NFC form, so a name
// typed on different systems announces identically. The device type is
// lower-cased.
func (c ConnectConfig) Normalized() ConnectConfig {
	c.Name = norm.NFC.String(strings.TrimSpace(c.Name))
	c.DeviceType = strings.ToLower(strings.TrimSpace(c.DeviceType))
	return c
}

// Validate checks the device description.
func (c ConnectConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connect.name: must not be empty")
	}
	if !slices.Contains(deviceTypes, c.DeviceType) {
		return fmt.Errorf("connect.deviceType: unsupported value %q", c.DeviceType)
	}
	if c.InitialVolume > 100 {
		return fmt.Errorf("connect.initialVolume: %d out of range 0..100", c.InitialVolume)
	}
	return nil
}
