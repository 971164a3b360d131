// Package portmon reconciles the observed relay listener table against
// the endpoint directory and fans status deltas out through the event
// bus.
package portmon

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/jpillora/backoff"

	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/ports"
	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// Directory is the subset of the endpoint store the monitor reads.
type Directory interface {
	RelayPorts(ctx context.Context) (map[int]string, error)
	GetEndpoint(ctx context.Context, id string) (domain.Endpoint, error)
	EndpointAccessors(ctx context.Context, endpointID string) ([]string, error)
}

// Monitor periodically replaces the port snapshot and publishes deltas.
type Monitor struct {
	dir      Directory
	bus      *eventbus.Bus
	registry *ports.Registry
	probe    Prober
	log      *slog.Logger
	interval time.Duration

	// Consecutive failed or empty probe reads. A single bad read never
	// clobbers the last known good snapshot; the second one does.
	badProbeStreak int
}

// New creates a Monitor. interval only matters for [Monitor.Run].
func New(dir Directory, bus *eventbus.Bus, registry *ports.Registry, probe Prober, logger *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		dir:      dir,
		bus:      bus,
		registry: registry,
		probe:    probe,
		log:      logger,
		interval: interval,
	}
}

// Run drives Reconcile on the configured interval until ctx is done.
// Failed passes back off and never stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    m.interval,
		Max:    4 * m.interval,
		Factor: 2,
		Jitter: true,
	}
	for {
		wait := m.interval
		if err := m.Reconcile(ctx); err != nil {
			m.log.Error("port reconciliation failed", "err", err)
			wait = b.Duration()
		} else {
			b.Reset()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Reconcile performs one pass: probe, intersect with the directory,
// diff against the cached snapshot, publish deltas, replace the
// snapshot. An unchanged result emits nothing.
func (m *Monitor) Reconcile(ctx context.Context) error {
	observed, probeErr := m.probe.ListeningPorts(ctx)
	if probeErr != nil || len(observed) == 0 {
		m.badProbeStreak++
		if m.badProbeStreak < 2 {
			m.log.Warn("probe failed or empty, keeping last known snapshot",
				"err", probeErr, "streak", m.badProbeStreak)
			return nil
		}
		observed = nil
	} else {
		m.badProbeStreak = 0
	}

	relayPorts, err := m.dir.RelayPorts(ctx)
	if err != nil {
		return fmt.Errorf("list relay ports: %w", err)
	}

	listening := map[int]bool{}
	for _, port := range observed {
		listening[port] = true
	}
	next := make(domain.PortSnapshot, len(relayPorts))
	for port := range relayPorts {
		next[port] = listening[port]
	}

	prev := m.registry.Snapshot()
	if maps.Equal(prev, next) {
		return nil
	}

	m.bus.Publish(eventbus.GlobalGroup, eventbus.Envelope{
		Action: wsproto.ActionTunnelStatusData,
		Data:   connectedPorts(next),
	})

	for _, port := range flippedPorts(prev, next) {
		up := next[port]
		state := "disconnected"
		if up {
			state = "connected"
		}
		m.bus.Publish(eventbus.GlobalGroup, eventbus.Envelope{
			Action: wsproto.ActionTunnelStatus,
			Data:   fmt.Sprintf("Port [%d] has been %s", port, state),
		})

		endpointID, ok := relayPorts[port]
		if !ok {
			// Port disappeared from the directory between passes.
			continue
		}
		m.notifyEndpoint(ctx, endpointID, port, up)
	}

	m.registry.Replace(next)
	return nil
}

func (m *Monitor) notifyEndpoint(ctx context.Context, endpointID string, port int, up bool) {
	ep, err := m.dir.GetEndpoint(ctx, endpointID)
	if err != nil {
		m.log.Error("endpoint lookup during reconciliation failed", "endpoint_id", endpointID, "err", err)
		return
	}
	status := wsproto.ConnectionStatus{
		Type:        "connection_status",
		EndpointID:  ep.ID,
		RelayPort:   port,
		IsConnected: up,
		Name:        ep.Name,
	}
	env := eventbus.Envelope{Action: wsproto.ActionConnectionStatus, Data: status}

	m.bus.Publish(eventbus.EndpointGroup(ep.ID), env)

	accessors, err := m.dir.EndpointAccessors(ctx, ep.ID)
	if err != nil {
		m.log.Error("accessor lookup during reconciliation failed", "endpoint_id", ep.ID, "err", err)
		return
	}
	for _, principalID := range accessors {
		m.bus.Publish(eventbus.PrincipalGroup(principalID), env)
	}
}

func connectedPorts(snap domain.PortSnapshot) []int {
	var out []int
	for port, up := range snap {
		if up {
			out = append(out, port)
		}
	}
	slices.Sort(out)
	return out
}

func flippedPorts(prev, next domain.PortSnapshot) []int {
	seen := map[int]bool{}
	var out []int
	for port, up := range next {
		if prev[port] != up {
			out = append(out, port)
		}
		seen[port] = true
	}
	for port, up := range prev {
		if !seen[port] && up {
			// Port left the directory while listening; report it down.
			out = append(out, port)
		}
	}
	slices.Sort(out)
	return out
}
