package ports

import (
	"sync"
	"testing"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

func TestRegistryStartsEmpty(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if len(r.Snapshot()) != 0 {
		t.Fatalf("fresh registry not empty: %v", r.Snapshot())
	}
	if r.IsListening(22022) {
		t.Fatalf("unknown port reported listening")
	}
}

func TestReplaceAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Replace(domain.PortSnapshot{20001: true, 20002: false})

	if !r.IsListening(20001) {
		t.Fatalf("20001 should be listening")
	}
	if r.IsListening(20002) {
		t.Fatalf("20002 should not be listening")
	}
	if r.IsListening(20003) {
		t.Fatalf("absent port should not be listening")
	}
}

func TestSnapshotIsIsolatedFromCaller(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Replace(domain.PortSnapshot{20001: true})

	snap := r.Snapshot()
	snap[20001] = false
	snap[20009] = true

	if !r.IsListening(20001) {
		t.Fatalf("caller mutation leaked into the registry")
	}
	if r.IsListening(20009) {
		t.Fatalf("caller addition leaked into the registry")
	}
}

func TestConcurrentReplaceAndRead(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(port int) {
			defer wg.Done()
			r.Replace(domain.PortSnapshot{20000 + port: true})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
			_ = r.IsListening(20000)
		}()
	}
	wg.Wait()
}
