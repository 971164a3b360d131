package config

import (
	"testing"
	"time"
)

func TestParseServerFlagsDefaults(t *testing.T) {
	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatalf("ParseServerFlags: %v", err)
	}
	if cfg.Listen != ":8422" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.DBPath != "./tunnelgate.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.PortRangeLow != 20000 || cfg.PortRangeHigh != 30000 {
		t.Errorf("port range = [%d, %d)", cfg.PortRangeLow, cfg.PortRangeHigh)
	}
	if cfg.ReconcileInterval != 15*time.Second {
		t.Errorf("ReconcileInterval = %v", cfg.ReconcileInterval)
	}
	if cfg.TermGraceWindow != 500*time.Millisecond {
		t.Errorf("TermGraceWindow = %v", cfg.TermGraceWindow)
	}
}

func TestParseServerFlagsEnvOverride(t *testing.T) {
	t.Setenv("TUNNELGATE_LISTEN", ":9000")
	t.Setenv("TUNNELGATE_RELAY_HOST", "relay.internal")
	t.Setenv("TUNNELGATE_PORT_RANGE_LOW", "25000")

	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatalf("ParseServerFlags: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RelayHost != "relay.internal" {
		t.Errorf("RelayHost = %q", cfg.RelayHost)
	}
	if cfg.PortRangeLow != 25000 {
		t.Errorf("PortRangeLow = %d", cfg.PortRangeLow)
	}
}

func TestParseServerFlagsRelayHostPort(t *testing.T) {
	cfg, err := ParseServerFlags([]string{"--relay-host", "Relay.Internal:2222"})
	if err != nil {
		t.Fatalf("ParseServerFlags: %v", err)
	}
	if cfg.RelayHost != "relay.internal" {
		t.Errorf("RelayHost = %q", cfg.RelayHost)
	}
	if cfg.RelaySSHPort != 2222 {
		t.Errorf("RelaySSHPort = %d", cfg.RelaySSHPort)
	}

	cfg, err = ParseServerFlags([]string{"--relay-host", "relay.internal"})
	if err != nil {
		t.Fatalf("ParseServerFlags: %v", err)
	}
	if cfg.RelaySSHPort != 22 {
		t.Errorf("RelaySSHPort = %d, want default 22", cfg.RelaySSHPort)
	}
}

func TestParseServerFlagsFlagBeatsEnv(t *testing.T) {
	t.Setenv("TUNNELGATE_LISTEN", ":9000")

	cfg, err := ParseServerFlags([]string{"--listen", ":7000"})
	if err != nil {
		t.Fatalf("ParseServerFlags: %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want flag value", cfg.Listen)
	}
}

func TestParseServerFlagsValidation(t *testing.T) {
	cases := [][]string{
		{"--relay-host", "  "},
		{"--port-range-low", "0"},
		{"--port-range-low", "30000", "--port-range-high", "20000"},
		{"--reconcile-interval", "0s"},
		{"--term-grace", "-1s"},
		{"--lookup-pool", "0"},
	}
	for _, args := range cases {
		if _, err := ParseServerFlags(args); err == nil {
			t.Errorf("ParseServerFlags(%v) accepted invalid config", args)
		}
	}
}
