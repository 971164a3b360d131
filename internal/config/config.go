// Package config parses gateway configuration from environment
// variables overlaid by command-line flags.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/netutil"
)

// ServerConfig holds everything the gateway process needs to run.
type ServerConfig struct {
	Listen            string
	DBPath            string
	TokenPepper       string
	LogLevel          string
	RelayHost         string // SSH host carrying the reverse tunnels
	RelaySSHPort      int
	RelaySSHUser      string
	RelayKeyFile      string
	PortRangeLow      int // inclusive
	PortRangeHigh     int // exclusive
	ReconcileInterval time.Duration
	TermGraceWindow   time.Duration
	LookupPoolSize    int64
	SessionTokenTTL   time.Duration
	TransferTicketTTL time.Duration
	EventBufferSize   int
}

const defaultListen = ":8422"
const defaultDBPath = "./tunnelgate.db"
const defaultRelayHost = "127.0.0.1"
const defaultRelaySSHPort = 22
const defaultRelaySSHUser = "tunnelgate"
const defaultPortRangeLow = 20000
const defaultPortRangeHigh = 30000
const defaultReconcileInterval = 15 * time.Second
const defaultTermGraceWindow = 500 * time.Millisecond
const defaultLookupPoolSize = 16
const defaultSessionTokenTTL = 12 * time.Hour
const defaultTransferTicketTTL = 60 * time.Second
const defaultEventBufferSize = 32

// ParseServerFlags builds a ServerConfig from TUNNELGATE_* environment
// variables and the given flag arguments, validating the result.
func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Listen:            envOrDefault("TUNNELGATE_LISTEN", defaultListen),
		DBPath:            envOrDefault("TUNNELGATE_DB_PATH", defaultDBPath),
		TokenPepper:       envOrDefault("TUNNELGATE_TOKEN_PEPPER", ""),
		LogLevel:          envOrDefault("TUNNELGATE_LOG_LEVEL", "info"),
		RelayHost:         envOrDefault("TUNNELGATE_RELAY_HOST", defaultRelayHost),
		RelaySSHPort:      envIntOrDefault("TUNNELGATE_RELAY_SSH_PORT", defaultRelaySSHPort),
		RelaySSHUser:      envOrDefault("TUNNELGATE_RELAY_SSH_USER", defaultRelaySSHUser),
		RelayKeyFile:      envOrDefault("TUNNELGATE_RELAY_KEY_FILE", ""),
		PortRangeLow:      envIntOrDefault("TUNNELGATE_PORT_RANGE_LOW", defaultPortRangeLow),
		PortRangeHigh:     envIntOrDefault("TUNNELGATE_PORT_RANGE_HIGH", defaultPortRangeHigh),
		ReconcileInterval: defaultReconcileInterval,
		TermGraceWindow:   defaultTermGraceWindow,
		LookupPoolSize:    defaultLookupPoolSize,
		SessionTokenTTL:   defaultSessionTokenTTL,
		TransferTicketTTL: defaultTransferTicketTTL,
		EventBufferSize:   defaultEventBufferSize,
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.TokenPepper, "token-pepper", cfg.TokenPepper, "Session token hash pepper override")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.RelayHost, "relay-host", cfg.RelayHost, "SSH relay host carrying reverse tunnels, host or host:port")
	fs.StringVar(&cfg.RelaySSHUser, "relay-ssh-user", cfg.RelaySSHUser, "SSH user on the relay host")
	fs.StringVar(&cfg.RelayKeyFile, "relay-key-file", cfg.RelayKeyFile, "Private key for relay SSH access")
	fs.IntVar(&cfg.PortRangeLow, "port-range-low", cfg.PortRangeLow, "Relay port allocation range start (inclusive)")
	fs.IntVar(&cfg.PortRangeHigh, "port-range-high", cfg.PortRangeHigh, "Relay port allocation range end (exclusive)")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "Port reconciliation interval")
	fs.DurationVar(&cfg.TermGraceWindow, "term-grace", cfg.TermGraceWindow, "SIGTERM grace window before SIGKILL")
	fs.Int64Var(&cfg.LookupPoolSize, "lookup-pool", cfg.LookupPoolSize, "Max concurrent directory/credential lookups")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.RelayHost, cfg.RelaySSHPort = netutil.SplitHostDefaultPort(cfg.RelayHost, cfg.RelaySSHPort)
	if cfg.RelayHost == "" {
		return cfg, errors.New("missing --relay-host or TUNNELGATE_RELAY_HOST")
	}
	if cfg.RelaySSHPort <= 0 || cfg.RelaySSHPort > 65535 {
		return cfg, errors.New("relay SSH port must be in 1..65535")
	}
	if cfg.PortRangeLow <= 0 || cfg.PortRangeHigh > 65536 || cfg.PortRangeLow >= cfg.PortRangeHigh {
		return cfg, errors.New("relay port range must satisfy 0 < low < high <= 65536")
	}
	if cfg.ReconcileInterval <= 0 {
		return cfg, errors.New("reconcile interval must be > 0")
	}
	if cfg.TermGraceWindow <= 0 {
		return cfg, errors.New("termination grace window must be > 0")
	}
	if cfg.LookupPoolSize <= 0 {
		return cfg, errors.New("lookup pool size must be > 0")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
