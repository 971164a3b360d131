package netutil

import "testing"

func TestSplitHostDefaultPort(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		host string
		port int
	}{
		"Relay.Example.COM:2222": {"relay.example.com", 2222},
		" relay.example.com. ":   {"relay.example.com", 22},
		"relay.example.com":      {"relay.example.com", 22},
		"[2001:db8::1]:2222":     {"2001:db8::1", 2222},
		"2001:db8::1":            {"2001:db8::1", 22},
		"127.0.0.1:22022":        {"127.0.0.1", 22022},
		"localhost":              {"localhost", 22},
	}

	for in, want := range tests {
		host, port := SplitHostDefaultPort(in, 22)
		if host != want.host || port != want.port {
			t.Fatalf("SplitHostDefaultPort(%q): got (%q, %d), want (%q, %d)",
				in, host, port, want.host, want.port)
		}
	}
}

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Relay.Example.COM:2222": "relay.example.com",
		" relay.example.com. ":   "relay.example.com",
		"[2001:db8::1]:2222":     "2001:db8::1",
		"2001:db8::1":            "2001:db8::1",
		"localhost:22022":        "localhost",
	}

	for in, want := range tests {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q): got %q, want %q", in, got, want)
		}
	}
}
