// Package config loads runtime settings for roomsync with the layering
// defaults -> JSON file -> command-line flags, later sources winning.
package config

import "time"

// Mode selects which transport the session uses.
type Mode string

const (
	// ModeHost runs the in-process host core; backend calls are bridged
	// directly without a network hop.
	ModeHost Mode = "host"
	// ModeClient talks to a remote host over REST + SSE.
	ModeClient Mode = "client"
)

// Config holds runtime settings for roomsync.
//
// Units: durations are time.Duration (JSON uses seconds).
type Config struct {
	// Mode is host or client.
	Mode Mode
	// ServerURL is the remote host base URL (client mode).
	ServerURL string
	// ListenAddr is the host REST/SSE bind address (host mode).
	ListenAddr string
	// RequestTimeout bounds individual REST calls.
	RequestTimeout time.Duration
	// ReconnectDelay is the fixed wait before a push-channel reconnect.
	ReconnectDelay time.Duration
	// InviteFallbackTTL is used for the outbound countdown when the host
	// reply carries no expiry.
	InviteFallbackTTL time.Duration
	// UserName is the display name to register on startup; the CLI
	// prompts when empty.
	UserName string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Mode = ModeClient
	c.ServerURL = "http://localhost:8080"
	c.ListenAddr = "0.0.0.0:8080"
	c.RequestTimeout = 15 * time.Second
	c.ReconnectDelay = 5 * time.Second
	c.InviteFallbackTTL = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
