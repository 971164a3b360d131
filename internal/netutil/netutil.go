// Package netutil provides shared host normalization helpers.
package netutil

import (
	"net"
	"strconv"
	"strings"
)

// SplitHostDefaultPort splits "host", "host:port", or "[v6]:port" into
// host and port, falling back to def when no port is given. The host is
// lower-cased with brackets and trailing dots stripped.
func SplitHostDefaultPort(raw string, def int) (string, int) {
	host := strings.ToLower(strings.TrimSpace(raw))
	port := def

	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			host, port = h, n
		}
	} else if left, right, ok := strings.Cut(host, ":"); ok && isDigits(right) && !strings.Contains(left, ":") {
		host = left
		port, _ = strconv.Atoi(right)
	}

	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, "."), port
}

// NormalizeHost lower-cases and strips ports/trailing dots from host
// values.
func NormalizeHost(raw string) string {
	host, _ := SplitHostDefaultPort(raw, 0)
	return host
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
