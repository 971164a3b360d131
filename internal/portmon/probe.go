package portmon

import (
	"context"
	"regexp"
	"strconv"

	"github.com/tunnelgate/tunnelgate/internal/sshexec"
)

// Prober obtains the set of ports currently listening on the relay host.
type Prober interface {
	ListeningPorts(ctx context.Context) ([]int, error)
}

// SocketProber runs `ss -tlnp` on the relay host over SSH and parses
// the listener table.
type SocketProber struct {
	Runner sshexec.Runner
}

const socketProbeCommand = "ss -tlnp"

// ListeningPorts implements [Prober].
func (p *SocketProber) ListeningPorts(ctx context.Context) ([]int, error) {
	out, err := p.Runner.Run(ctx, socketProbeCommand)
	if err != nil {
		return nil, err
	}
	return ParseSocketTable(string(out)), nil
}

var listenLineRE = regexp.MustCompile(`LISTEN\s+\d+\s+\d+\s+[\d.:*\[\]]*:(\d+)`)

// ParseSocketTable extracts listening ports from ss -tlnp output.
// Unparseable lines are skipped.
func ParseSocketTable(output string) []int {
	var ports []int
	seen := map[int]bool{}
	for _, match := range listenLineRE.FindAllStringSubmatch(output, -1) {
		port, err := strconv.Atoi(match[1])
		if err != nil || seen[port] {
			continue
		}
		seen[port] = true
		ports = append(ports, port)
	}
	return ports
}
