// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "MIRROR_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is an interactive run on a developer's machine.
	Development Environment = "development"
	// Production is a long-running host, usually under a supervisor.
	Production Environment = "production"
)

// Transport kinds.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Signaling kinds.
const (
	SignalingHTTP   = "http"
	SignalingRedis  = "redis"
	SignalingMemory = "memory"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete mirror configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Identity  IdentityConfig  `yaml:"identity"`
	HTTP      HTTPConfig      `yaml:"http"`
	Transport TransportConfig `yaml:"transport"`
	Signaling SignalingConfig `yaml:"signaling"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment section may replace.
// Empty strings and nil pointers leave the base value alone.
type Overrides struct {
	Identity  *IdentityConfig  `yaml:"identity,omitempty"`
	HTTP      *HTTPConfig      `yaml:"http,omitempty"`
	Signaling *SignalingConfig `yaml:"signaling,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
}

// IdentityConfig configures where the device identity lives.
type IdentityConfig struct {
	// Store is the bbolt file holding the identity. Empty keeps the
	// identity in memory for this process only.
	// Default: ${HOME}/.local/state/mirror/identity.db
	Store string `yaml:"store"`

	// EphemeralHost makes `mirror host` use a fresh legacy host id per
	// run instead of the stable identity.
	EphemeralHost bool `yaml:"ephemeral_host"`
}

// HTTPConfig configures the host's HTTP server.
type HTTPConfig struct {
	// Listen is the address the host serves on.
	// Default: 0.0.0.0:3000
	Listen string `yaml:"listen"`

	// BaseURL overrides the base of join links. Empty resolves it from
	// the LAN address of this machine.
	BaseURL string `yaml:"base_url"`
}

// TransportConfig configures how peers open connections.
type TransportConfig struct {
	// Kind is webrtc or websocket.
	Kind string `yaml:"kind"`

	// ConnectTimeout bounds an outbound attempt. Expiry reports the
	// peer as unreachable. Zero disables the timeout.
	// Default: 30s
	ConnectTimeout string `yaml:"connect_timeout"`

	// ICEServers are STUN/TURN URLs for WebRTC. Empty uses the public
	// STUN defaults.
	ICEServers []string `yaml:"ice_servers"`
}

// SignalingConfig configures how WebRTC offers and answers travel.
type SignalingConfig struct {
	// Kind is http (through the host), redis, or memory.
	Kind string `yaml:"kind"`

	// URL is the host base URL for http signaling and the websocket
	// transport, used by joiners. Empty derives it from the join link.
	URL string `yaml:"url"`

	// RedisAddress is host:port of the shared Redis broker.
	RedisAddress string `yaml:"redis_address"`

	// RedisTTL is how long a published offer or answer survives.
	// Default: 2m
	RedisTTL string `yaml:"redis_ttl"`
}

// MirrorConfig configures the document exchange.
type MirrorConfig struct {
	// SeedOnOpen makes the host send its document to each joiner as
	// soon as the connection opens.
	// Default: true
	SeedOnOpen bool `yaml:"seed_on_open"`
}

// DiscoveryConfig configures mDNS advertisement of running hosts.
type DiscoveryConfig struct {
	// MDNS enables advertising and browsing.
	MDNS bool `yaml:"mdns"`

	// Service is the DNS-SD service type.
	// Default: _instant-mirror._tcp
	Service string `yaml:"service"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text, or json.
	Format string `yaml:"format"`

	// File receives logs instead of stderr. The terminal UI always
	// writes logs here, or discards them when empty.
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given, and the
// base that a loaded file is merged onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		Identity: IdentityConfig{
			Store: "${HOME}/.local/state/mirror/identity.db",
		},
		HTTP: HTTPConfig{
			Listen: "0.0.0.0:3000",
		},
		Transport: TransportConfig{
			Kind:           TransportWebRTC,
			ConnectTimeout: "30s",
		},
		Signaling: SignalingConfig{
			Kind:     SignalingHTTP,
			RedisTTL: "2m",
		},
		Mirror: MirrorConfig{
			SeedOnOpen: true,
		},
		Discovery: DiscoveryConfig{
			MDNS:    true,
			Service: "_instant-mirror._tcp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: LogFormatAuto,
		},
	}
}

// Load loads the file named by MIRROR_CONFIG, or returns Default with
// variables expanded when it is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// JSON is a subset of YAML, so once comments and trailing commas are
	// gone the same decoder handles both.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{
				Logging: &LoggingConfig{Format: LogFormatJSON},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Identity != nil {
		if overrides.Identity.Store != "" {
			c.Identity.Store = overrides.Identity.Store
		}
		c.Identity.EphemeralHost = overrides.Identity.EphemeralHost
	}

	if overrides.HTTP != nil {
		if overrides.HTTP.Listen != "" {
			c.HTTP.Listen = overrides.HTTP.Listen
		}
		if overrides.HTTP.BaseURL != "" {
			c.HTTP.BaseURL = overrides.HTTP.BaseURL
		}
	}

	if overrides.Signaling != nil {
		if overrides.Signaling.Kind != "" {
			c.Signaling.Kind = overrides.Signaling.Kind
		}
		if overrides.Signaling.URL != "" {
			c.Signaling.URL = overrides.Signaling.URL
		}
		if overrides.Signaling.RedisAddress != "" {
			c.Signaling.RedisAddress = overrides.Signaling.RedisAddress
		}
		if overrides.Signaling.RedisTTL != "" {
			c.Signaling.RedisTTL = overrides.Signaling.RedisTTL
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
		if overrides.Logging.File != "" {
			c.Logging.File = overrides.Logging.File
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Identity.Store = expandVars(c.Identity.Store, vars)
	c.Logging.File = expandVars(c.Logging.File, vars)
	c.Signaling.RedisAddress = expandVars(c.Signaling.RedisAddress, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ConnectTimeoutDuration parses Transport.ConnectTimeout. Empty means no
// timeout.
func (c *Config) ConnectTimeoutDuration() (time.Duration, error) {
	return parseOptionalDuration("transport.connect_timeout", c.Transport.ConnectTimeout)
}

// RedisTTLDuration parses Signaling.RedisTTL.
func (c *Config) RedisTTLDuration() (time.Duration, error) {
	return parseOptionalDuration("signaling.redis_ttl", c.Signaling.RedisTTL)
}

func parseOptionalDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required"))
	}

	if !contains([]string{TransportWebRTC, TransportWebSocket}, c.Transport.Kind) {
		errs = append(errs, fmt.Errorf("transport.kind must be one of: %v", []string{TransportWebRTC, TransportWebSocket}))
	}
	if _, err := c.ConnectTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	signalingKinds := []string{SignalingHTTP, SignalingRedis, SignalingMemory}
	if !contains(signalingKinds, c.Signaling.Kind) {
		errs = append(errs, fmt.Errorf("signaling.kind must be one of: %v", signalingKinds))
	}
	if c.Signaling.Kind == SignalingRedis && c.Signaling.RedisAddress == "" {
		errs = append(errs, errors.New("signaling.redis_address is required when signaling.kind is redis"))
	}
	if ttl, err := c.RedisTTLDuration(); err != nil {
		errs = append(errs, err)
	} else if c.Signaling.Kind == SignalingRedis && ttl == 0 {
		errs = append(errs, errors.New("signaling.redis_ttl must be positive when signaling.kind is redis"))
	}

	if c.Discovery.MDNS && c.Discovery.Service == "" {
		errs = append(errs, errors.New("discovery.service is required when discovery.mdns is enabled"))
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", []string{"debug", "info", "warn", "error"}))
	}
	if !contains([]string{LogFormatAuto, LogFormatText, LogFormatJSON}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", []string{LogFormatAuto, LogFormatText, LogFormatJSON}))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureStateDir creates the directory holding the identity store.
func (c *Config) EnsureStateDir() error {
	if c.Identity.Store == "" {
		return nil
	}
	dir := filepath.Dir(c.Identity.Store)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
