// Package ssh provides SSH client utilities for executing commands on remote servers.
// It handles connection establishment with retry logic, key-based authentication,
// an optional jump host, and command execution with context support.
//
// Security: Host key verification is disabled by default because testbed
// nodes are re-imaged on every run and present a fresh host key each time.
// Configure HostKeyCallback to verify keys of long-lived hosts.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/stackfleet/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Gateway is a jump host the connection is tunnelled through.
type Gateway struct {
	Host string
	Port int

	// User defaults to the target user.
	User string
}

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// Gateway, when set, is dialed first and the target is reached through it.
	Gateway *Gateway

	// DialTimeout bounds the TCP connect and handshake of each hop.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Output is what a remote command produced.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Client executes commands on a remote server via SSH.
// It parses the private key once during construction and
// creates connections on-demand per command.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	return newClient(cfg)
}

func newClient(cfg *Config) (*Client, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}
	if cfg.Gateway != nil && cfg.Gateway.Host == "" {
		return nil, fmt.Errorf("config gateway host cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	configCopy := *cfg
	if cfg.Gateway != nil {
		gw := *cfg.Gateway
		if gw.Port == 0 {
			gw.Port = defaultPort
		}
		if gw.User == "" {
			gw.User = cfg.User
		}
		configCopy.Gateway = &gw
	}

	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Nodes are re-imaged on every run
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Host returns the target host of the client.
func (c *Client) Host() string {
	return c.config.Host
}

// WithHost returns a client for another host sharing the same credentials
// and gateway.
func (c *Client) WithHost(host string) *Client {
	cfg := *c.config
	cfg.Host = host
	return &Client{config: &cfg, signer: c.signer}
}

// Execute runs a command and returns its combined output. A non-zero exit
// status is reported as an error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	out, err := c.Run(ctx, command)
	if err != nil {
		return "", err
	}

	combined := out.Stdout + out.Stderr
	if out.ExitStatus != 0 {
		return combined, fmt.Errorf("command failed on %s: exit status %d\nCommand: %s\nOutput: %s",
			c.config.Host, out.ExitStatus, command, strings.TrimSpace(combined))
	}

	return combined, nil
}

// Run executes a command and returns its separated output and exit status.
// The error is non-nil only when the command could not be run to completion:
// the host was unreachable, the session failed or ctx was cancelled.
func (c *Client) Run(ctx context.Context, command string) (*Output, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	session, err := conn.target.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		<-done
		return nil, fmt.Errorf("command on %s interrupted: %w", c.config.Host, ctx.Err())
	case err = <-done:
	}

	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitStatus = exitErr.ExitStatus()
	default:
		return out, fmt.Errorf("command failed on %s: %w", c.config.Host, err)
	}

	return out, nil
}

// connection is an established client plus the gateway it was tunnelled
// through, if any.
type connection struct {
	target  *ssh.Client
	gateway *ssh.Client
}

func (c *connection) Close() error {
	err := c.target.Close()
	if c.gateway != nil {
		_ = c.gateway.Close()
	}
	return err
}

// connect establishes the SSH connection with retry logic. Authentication
// failures are not retried.
func (c *Client) connect(ctx context.Context) (*connection, error) {
	var conn *connection

	err := retry.WithExponentialBackoff(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return retry.Fatal(err)
		}
		var dialErr error
		conn, dialErr = c.dial(ctx)
		if dialErr != nil && isAuthError(dialErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", c.address(), err)
	}

	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*connection, error) {
	if c.config.Gateway == nil {
		target, err := c.handshake(ctx, nil, c.address(), c.config.User)
		if err != nil {
			return nil, err
		}
		return &connection{target: target}, nil
	}

	gw := c.config.Gateway
	gwAddr := net.JoinHostPort(gw.Host, strconv.Itoa(gw.Port))
	gateway, err := c.handshake(ctx, nil, gwAddr, gw.User)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", gwAddr, err)
	}

	target, err := c.handshake(ctx, gateway, c.address(), c.config.User)
	if err != nil {
		_ = gateway.Close()
		return nil, err
	}

	return &connection{target: target, gateway: gateway}, nil
}

// handshake opens a TCP connection to addr, directly or through via, and
// runs the SSH handshake on it within the dial timeout.
func (c *Client) handshake(ctx context.Context, via *ssh.Client, addr, user string) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	var (
		raw net.Conn
		err error
	)
	if via == nil {
		var d net.Dialer
		raw, err = d.DialContext(dialCtx, "tcp", addr)
	} else {
		raw, err = via.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	_ = raw.SetDeadline(time.Now().Add(c.config.DialTimeout))
	sc, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	})
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})

	return ssh.NewClient(sc, chans, reqs), nil
}

func (c *Client) address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
