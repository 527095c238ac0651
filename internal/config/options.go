// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates engine construction options (spec §6
// "Configuration"): a YAML unmarshal over a Defaults() struct, followed by
// a Validate method that fills in defaults and rejects bad combinations
// with a descriptive error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nishisan-dev/gatewayclient/internal/codec"
	"github.com/nishisan-dev/gatewayclient/internal/presence"
)

// Compress selects the inbound decompression mode.
type Compress string

const (
	CompressNone Compress = "none"
	CompressZlib Compress = "zlib"
)

// Options holds every value spec §6's configuration table names, plus the
// connection URL and credentials needed to actually dial. Zero-value
// Options is not useable directly — call Load or Validate first so
// defaults are applied.
type Options struct {
	// URL is the base gateway URL; Path defaults to "/" if empty (spec
	// §4.F step 3).
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	AutoReconnect      bool             `yaml:"auto_reconnect"`
	Compress           Compress         `yaml:"compress"`
	Encoding           codec.Encoding   `yaml:"encoding"`
	GuildSubscriptions bool             `yaml:"guild_subscriptions"`
	LargeThreshold     int              `yaml:"large_threshold"`
	Presence           *presence.Update `yaml:"presence"`
	ReconnectDelay     time.Duration    `yaml:"reconnect_delay"`
	ReconnectMax       int              `yaml:"reconnect_max"`
	ShardCount         int              `yaml:"shard_count"`
	ShardID            int              `yaml:"shard_id"`
	DisabledEvents     []string         `yaml:"disabled_events"`

	// GatewayAPIVersion is appended to the connect URL's query string
	// (spec §4.F step 3: "v=<gateway-api-version>").
	GatewayAPIVersion int `yaml:"gateway_api_version"`

	// VoiceConnectTimeout bounds how long VoiceConnect waits for the
	// VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE pair before failing (spec
	// §4.H). Zero means use media.DefaultConnectTimeout.
	VoiceConnectTimeout time.Duration `yaml:"voice_connect_timeout"`
}

// Defaults returns an Options populated with every spec §6 default value.
func Defaults() Options {
	return Options{
		AutoReconnect:      true,
		Compress:           CompressZlib,
		Encoding:           defaultEncoding(),
		GuildSubscriptions: true,
		LargeThreshold:     250,
		ReconnectDelay:     5000 * time.Millisecond,
		ReconnectMax:       5,
		ShardCount:         1,
		ShardID:            0,
		GatewayAPIVersion:  10,
	}
}

func defaultEncoding() codec.Encoding {
	if codec.BinaryTermAvailable {
		return codec.EncodingBinaryTerm
	}
	return codec.EncodingJSON
}

// Load reads and parses a YAML options file at path, applies it over
// Defaults(), and validates the result.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gateway client config: %w", err)
	}

	opts := Defaults()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("parsing gateway client config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("validating gateway client config: %w", err)
	}
	return &opts, nil
}

// Validate enforces spec §6's "Validation at construction" rules. The
// engine must fail loudly and never start if this returns an error (spec
// §7 "Configuration errors").
func (o *Options) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}
	if o.Token == "" {
		return fmt.Errorf("token is required")
	}

	switch o.Compress {
	case CompressNone, CompressZlib:
	case "":
		o.Compress = CompressZlib
	default:
		return fmt.Errorf("compress must be %q or %q, got %q", CompressNone, CompressZlib, o.Compress)
	}

	switch o.Encoding {
	case codec.EncodingJSON:
	case codec.EncodingBinaryTerm:
		if !codec.BinaryTermAvailable {
			return fmt.Errorf("encoding %q requires the binary-term codec, which is unavailable in this build", o.Encoding)
		}
	case "":
		o.Encoding = defaultEncoding()
	default:
		return fmt.Errorf("unknown encoding %q", o.Encoding)
	}

	if o.ShardCount <= 0 {
		o.ShardCount = 1
	}
	if o.ShardID < 0 || o.ShardID >= o.ShardCount {
		return fmt.Errorf("shard_id %d must be < shard_count %d", o.ShardID, o.ShardCount)
	}

	if o.LargeThreshold <= 0 {
		o.LargeThreshold = 250
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5000 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 5
	}
	if o.GatewayAPIVersion <= 0 {
		o.GatewayAPIVersion = 10
	}
	if o.VoiceConnectTimeout < 0 {
		return fmt.Errorf("voice_connect_timeout must not be negative")
	}

	return nil
}

// IsEventDisabled reports whether event is listed in DisabledEvents (spec
// §6: "events to suppress from external emission").
func (o *Options) IsEventDisabled(event string) bool {
	for _, e := range o.DisabledEvents {
		if e == event {
			return true
		}
	}
	return false
}
