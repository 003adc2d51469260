// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"vote-monitoring/internal/ancestry"
	"vote-monitoring/internal/votetx"
)

type Config struct {
	RPCURL        string // HTTP JSON-RPC endpoint
	WSURL         string // WebSocket pubsub endpoint; derived from RPCURL when unset
	VoteProgramID string
	AncestryCap   int    // live ancestry entry cap
	MetricsAddr   string // optional: listen address for /metrics
	Debug         bool   // if true: verbose logs, no TUI; if false: TUI dashboard
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %d\n", key, v, def)
		return def
	}
	return n
}

func Load() Config {
	cfg := Config{
		RPCURL:        getenv("RPC_URL", "http://localhost:8899"),
		WSURL:         os.Getenv("WS_URL"),
		VoteProgramID: getenv("VOTE_PROGRAM_ID", votetx.DefaultVoteProgramID),
		AncestryCap:   getenvInt("ANCESTRY_CAP", ancestry.DefaultCap),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		Debug:         getenvBool("DEBUG", false),
	}
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWebsocketURL(cfg.RPCURL)
	}
	return cfg
}

// deriveWebsocketURL maps the RPC URL to the conventional pubsub endpoint:
// scheme flipped to ws(s), port incremented by one.
func deriveWebsocketURL(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			u.Host = u.Hostname() + ":" + strconv.Itoa(n+1)
		}
	}
	return u.String()
}

func (c Config) String() string {
	return fmt.Sprintf("rpc=%s ws=%s ancestry_cap=%d metrics=%s",
		c.RPCURL, c.WSURL, c.AncestryCap, c.MetricsAddr)
}
