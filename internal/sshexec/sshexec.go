// Package sshexec runs commands on the relay host and, through it, on
// endpoint hosts, over SSH. The file-manager command channel and the
// port probe are its consumers.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Runner executes one command per call on a remote host. Implementations
// must be safe for sequential reuse; Close releases the underlying
// connection.
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
	Close() error
}

// Config describes how to reach the relay host.
type Config struct {
	Host    string
	Port    int // 0 means 22
	User    string
	KeyFile string
	Timeout time.Duration // 0 means 10s
}

// Client is an established SSH connection implementing [Runner].
type Client struct {
	conn   *ssh.Client
	signer ssh.Signer
}

// Dial connects to the relay host described by cfg.
func Dial(cfg Config) (*Client, error) {
	signer, err := loadSigner(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // relay host is trusted infra on a private net
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	conn, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", addr, err)
	}
	return &Client{conn: conn, signer: signer}, nil
}

// DialThrough opens a second SSH connection to an endpoint host's sshd
// listening on the relay's loopback at relayPort, authenticating as
// username with the same key. This mirrors the ssh -W jump the terminal
// session's child process performs.
func (c *Client) DialThrough(username string, relayPort int) (*Client, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(relayPort))
	raw, err := c.conn.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial through relay to %s: %w", addr, err)
	}
	clientCfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("handshake with endpoint on port %d: %w", relayPort, err)
	}
	return &Client{conn: ssh.NewClient(sshConn, chans, reqs), signer: c.signer}, nil
}

// Run executes command in a fresh session, returning combined output.
// Context cancellation closes the session.
func (c *Client) Run(ctx context.Context, command string) ([]byte, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()
	select {
	case err := <-done:
		if err != nil {
			return out.Bytes(), fmt.Errorf("run %q: %w", command, err)
		}
		return out.Bytes(), nil
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return nil, ctx.Err()
	}
}

// Close terminates the SSH connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func loadSigner(keyFile string) (ssh.Signer, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("relay key file not configured")
	}
	pem, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read relay key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse relay key: %w", err)
	}
	return signer, nil
}
