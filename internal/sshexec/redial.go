package sshexec

import (
	"context"
	"sync"
)

// RedialRunner is a [Runner] that dials lazily and drops the cached
// connection after a failed command, so the next call reconnects. It
// keeps a long-lived consumer such as the port probe working across
// relay restarts.
type RedialRunner struct {
	cfg Config

	mu     sync.Mutex
	client *Client
}

// NewRedialRunner returns a runner for cfg without connecting yet.
func NewRedialRunner(cfg Config) *RedialRunner {
	return &RedialRunner{cfg: cfg}
}

func (r *RedialRunner) Run(ctx context.Context, command string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		client, err := Dial(r.cfg)
		if err != nil {
			return nil, err
		}
		r.client = client
	}

	out, err := r.client.Run(ctx, command)
	if err != nil {
		_ = r.client.Close()
		r.client = nil
	}
	return out, err
}

func (r *RedialRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
