package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/goteamwork/roomsync/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations are
// plain seconds so config files stay editable by hand.
type JsonConfig struct {
	Mode                 string `json:"mode"`
	ServerURL            string `json:"server_url"`
	ListenAddr           string `json:"listen_addr"`
	RequestTimeoutSec    int    `json:"request_timeout"`
	ReconnectDelaySec    int    `json:"reconnect_delay"`
	InviteFallbackTTLSec int    `json:"invite_fallback_ttl"`
	UserName             string `json:"user_name"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flag. Absent file path means no overlay; read or unmarshal
// errors panic (caller may recover).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.Mode != "" {
		if jc.Mode == string(ModeHost) {
			cfg.Mode = ModeHost
		} else {
			cfg.Mode = ModeClient
		}
	}
	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.ListenAddr != "" {
		cfg.ListenAddr = jc.ListenAddr
	}
	if jc.RequestTimeoutSec > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeoutSec) * time.Second
	}
	if jc.ReconnectDelaySec > 0 {
		cfg.ReconnectDelay = time.Duration(jc.ReconnectDelaySec) * time.Second
	}
	if jc.InviteFallbackTTLSec > 0 {
		cfg.InviteFallbackTTL = time.Duration(jc.InviteFallbackTTLSec) * time.Second
	}
	if jc.UserName != "" {
		cfg.UserName = jc.UserName
	}
}
