// Package ports holds the shared snapshot of relay ports currently
// observed listening. The snapshot is written only by the
// reconciliation monitor and only by whole-value replacement, so
// readers never observe a partially updated map.
package ports

import (
	"sync/atomic"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// Registry is the single accessor for the port status cache.
type Registry struct {
	snapshot atomic.Value // domain.PortSnapshot
}

// NewRegistry returns a registry holding an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(domain.PortSnapshot{})
	return r
}

// Snapshot returns a copy of the current snapshot, safe for the
// caller to mutate.
func (r *Registry) Snapshot() domain.PortSnapshot {
	return r.snapshot.Load().(domain.PortSnapshot).Clone()
}

// Replace atomically installs a new snapshot. The map must not be
// mutated after it is handed over.
func (r *Registry) Replace(snap domain.PortSnapshot) {
	if snap == nil {
		snap = domain.PortSnapshot{}
	}
	r.snapshot.Store(snap)
}

// IsListening reports the last observed state of one relay port.
func (r *Registry) IsListening(port int) bool {
	return r.Snapshot()[port]
}
