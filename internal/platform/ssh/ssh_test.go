package ssh

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/imamik/stackfleet/internal/util/keygen"
)

// generateTestKey generates a test RSA key pair for use in tests.
func generateTestKey(t *testing.T) *keygen.KeyPair {
	t.Helper()
	keyPair, err := keygen.GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return keyPair
}

func TestNewClient_Success(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if client == nil {
		t.Fatal("expected client, got nil")
	}

	// Verify defaults were applied
	if client.config.Port != defaultPort { //nolint:staticcheck // t.Fatal above ensures client is not nil
		t.Errorf("expected port %d, got %d", defaultPort, client.config.Port)
	}
	if client.config.DialTimeout != defaultDialTimeout {
		t.Errorf("expected timeout %v, got %v", defaultDialTimeout, client.config.DialTimeout)
	}
	if client.config.MaxRetries != defaultMaxRetries {
		t.Errorf("expected max retries %d, got %d", defaultMaxRetries, client.config.MaxRetries)
	}
	if client.config.RetryDelay != defaultRetryDelay {
		t.Errorf("expected retry delay %v, got %v", defaultRetryDelay, client.config.RetryDelay)
	}
}

func TestNewClient_InvalidKey(t *testing.T) {
	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: []byte("invalid key"),
	}

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected error for invalid private key, got nil")
	}

	want := "failed to parse private key"
	if len(err.Error()) < len(want) || err.Error()[:len(want)] != want {
		t.Errorf("expected error starting with %q, got: %v", want, err)
	}
}

func TestNewClient_NilConfig(t *testing.T) {
	_, err := NewClient(nil)
	if err == nil {
		t.Fatal("expected error for nil config, got nil")
	}

	if err.Error() != "config cannot be nil" {
		t.Errorf("expected 'config cannot be nil' error, got: %v", err)
	}
}

func TestNewClient_EmptyHost(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
	}

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected error for empty host, got nil")
	}

	want := "config host cannot be empty"
	if err.Error() != want {
		t.Errorf("expected error %q, got: %v", want, err)
	}
}

func TestNewClient_EmptyUser(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "",
		PrivateKey: keyPair.PrivateKey,
	}

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected error for empty user, got nil")
	}

	want := "config user cannot be empty"
	if err.Error() != want {
		t.Errorf("expected error %q, got: %v", want, err)
	}
}

func TestNewClient_EmptyPrivateKey(t *testing.T) {
	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: nil,
	}

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected error for empty private key, got nil")
	}

	want := "config private key cannot be empty"
	if err.Error() != want {
		t.Errorf("expected error %q, got: %v", want, err)
	}
}

func TestNewClient_CustomConfig(t *testing.T) {
	keyPair := generateTestKey(t)

	customPort := 2222
	customTimeout := 5 * time.Second
	customMaxRetries := 10
	customRetryDelay := 2 * time.Second

	cfg := &Config{
		Host:        "node-1.nancy.grid5000.fr",
		Port:        customPort,
		User:        "root",
		PrivateKey:  keyPair.PrivateKey,
		DialTimeout: customTimeout,
		MaxRetries:  customMaxRetries,
		RetryDelay:  customRetryDelay,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Verify custom values were preserved
	if client.config.Port != customPort {
		t.Errorf("expected port %d, got %d", customPort, client.config.Port)
	}
	if client.config.DialTimeout != customTimeout {
		t.Errorf("expected timeout %v, got %v", customTimeout, client.config.DialTimeout)
	}
	if client.config.MaxRetries != customMaxRetries {
		t.Errorf("expected max retries %d, got %d", customMaxRetries, client.config.MaxRetries)
	}
	if client.config.RetryDelay != customRetryDelay {
		t.Errorf("expected retry delay %v, got %v", customRetryDelay, client.config.RetryDelay)
	}
}

func TestNewClient_ConfigNotMutated(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		// Leave all optional fields as zero values
	}

	// Store original zero values
	originalPort := cfg.Port
	originalDialTimeout := cfg.DialTimeout
	originalMaxRetries := cfg.MaxRetries
	originalRetryDelay := cfg.RetryDelay

	_, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Verify original config was NOT mutated
	if cfg.Port != originalPort {
		t.Errorf("config was mutated: port changed from %d to %d", originalPort, cfg.Port)
	}
	if cfg.DialTimeout != originalDialTimeout {
		t.Errorf("config was mutated: DialTimeout changed from %v to %v", originalDialTimeout, cfg.DialTimeout)
	}
	if cfg.MaxRetries != originalMaxRetries {
		t.Errorf("config was mutated: MaxRetries changed from %d to %d", originalMaxRetries, cfg.MaxRetries)
	}
	if cfg.RetryDelay != originalRetryDelay {
		t.Errorf("config was mutated: RetryDelay changed from %v to %v", originalRetryDelay, cfg.RetryDelay)
	}
}

func TestNewClient_ParsesPrivateKey(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Verify signer was created (key was parsed)
	if client.signer == nil {
		t.Fatal("expected signer to be set, got nil")
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "192.0.2.1", // TEST-NET-1, never routed
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error creating client, got: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Execute(ctx, "echo test")
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in error chain, got: %v", err)
	}
}

func TestClient_AppliesDefaults(t *testing.T) {
	keyPair := generateTestKey(t)

	tests := []struct {
		name            string
		cfg             *Config
		wantPort        int
		wantDialTimeout time.Duration
		wantMaxRetries  int
		wantRetryDelay  time.Duration
	}{
		{
			name: "zero values get defaults",
			cfg: &Config{
				Host:       "node-1.nancy.grid5000.fr",
				User:       "root",
				PrivateKey: keyPair.PrivateKey,
				// All optional fields zero
			},
			wantPort:        defaultPort,
			wantDialTimeout: defaultDialTimeout,
			wantMaxRetries:  defaultMaxRetries,
			wantRetryDelay:  defaultRetryDelay,
		},
		{
			name: "custom values are preserved",
			cfg: &Config{
				Host:        "node-1.nancy.grid5000.fr",
				Port:        2222,
				User:        "root",
				PrivateKey:  keyPair.PrivateKey,
				DialTimeout: 5 * time.Second,
				MaxRetries:  10,
				RetryDelay:  2 * time.Second,
			},
			wantPort:        2222,
			wantDialTimeout: 5 * time.Second,
			wantMaxRetries:  10,
			wantRetryDelay:  2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Verify client uses expected values (either defaults or custom)
			if client.config.Port != tt.wantPort {
				t.Errorf("port = %d, want %d", client.config.Port, tt.wantPort)
			}
			if client.config.DialTimeout != tt.wantDialTimeout {
				t.Errorf("DialTimeout = %v, want %v", client.config.DialTimeout, tt.wantDialTimeout)
			}
			if client.config.MaxRetries != tt.wantMaxRetries {
				t.Errorf("MaxRetries = %d, want %d", client.config.MaxRetries, tt.wantMaxRetries)
			}
			if client.config.RetryDelay != tt.wantRetryDelay {
				t.Errorf("RetryDelay = %v, want %v", client.config.RetryDelay, tt.wantRetryDelay)
			}
		})
	}
}

func TestNewClient_GatewayDefaults(t *testing.T) {
	keyPair := generateTestKey(t)

	cfg := &Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		Gateway:    &Gateway{Host: "access.grid5000.fr"},
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	gw := client.config.Gateway
	if gw.Port != defaultPort {
		t.Errorf("gateway port = %d, want %d", gw.Port, defaultPort)
	}
	if gw.User != "root" {
		t.Errorf("gateway user = %q, want %q", gw.User, "root")
	}
	if cfg.Gateway.User != "" {
		t.Error("config was mutated: gateway user was filled in")
	}
}

func TestNewClient_EmptyGatewayHost(t *testing.T) {
	keyPair := generateTestKey(t)

	_, err := NewClient(&Config{
		Host:       "node-1.nancy.grid5000.fr",
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		Gateway:    &Gateway{},
	})
	if err == nil || err.Error() != "config gateway host cannot be empty" {
		t.Fatalf("expected gateway host error, got: %v", err)
	}
}

func TestWithHost(t *testing.T) {
	keyPair := generateTestKey(t)

	client, err := NewClient(&Config{Host: "a", User: "root", PrivateKey: keyPair.PrivateKey})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	other := client.WithHost("b")
	if other.Host() != "b" {
		t.Errorf("Host() = %q, want b", other.Host())
	}
	if client.Host() != "a" {
		t.Errorf("original client changed host to %q", client.Host())
	}
	if other.signer != client.signer {
		t.Error("expected signer to be shared")
	}
}

func newLocalClient(t *testing.T, srv *testServer, keyPair *keygen.KeyPair) *Client {
	t.Helper()
	host, port := srv.hostPort()
	client, err := NewClient(&Config{
		Host:       host,
		Port:       port,
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestRun_SeparatesOutputAndExitStatus(t *testing.T) {
	keyPair := generateTestKey(t)
	srv := newTestServer(t, keyPair.PublicKey, echoHandler)
	client := newLocalClient(t, srv, keyPair)

	out, err := client.Run(context.Background(), "echo controller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stdout != "controller-1\n" || out.Stderr != "" || out.ExitStatus != 0 {
		t.Errorf("unexpected output: %+v", out)
	}

	out, err = client.Run(context.Background(), "fail 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be a transport error, got: %v", err)
	}
	if out.ExitStatus != 3 {
		t.Errorf("ExitStatus = %d, want 3", out.ExitStatus)
	}
	if out.Stderr != "failing on purpose\n" {
		t.Errorf("Stderr = %q", out.Stderr)
	}
}

func TestExecute_NonZeroExitIsError(t *testing.T) {
	keyPair := generateTestKey(t)
	srv := newTestServer(t, keyPair.PublicKey, echoHandler)
	client := newLocalClient(t, srv, keyPair)

	output, err := client.Execute(context.Background(), "echo 4242")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "4242\n" {
		t.Errorf("output = %q", output)
	}

	_, err = client.Execute(context.Background(), "oarstat")
	if err == nil {
		t.Fatal("expected error for failing command")
	}
	if !strings.Contains(err.Error(), "exit status 127") {
		t.Errorf("expected exit status in error, got: %v", err)
	}
}

func TestRun_AuthenticationFailureIsNotRetried(t *testing.T) {
	serverKey := generateTestKey(t)
	clientKey := generateTestKey(t)
	srv := newTestServer(t, serverKey.PublicKey, echoHandler)

	host, port := srv.hostPort()
	client, err := NewClient(&Config{
		Host:       host,
		Port:       port,
		User:       "root",
		PrivateKey: clientKey.PrivateKey,
		MaxRetries: 5,
		RetryDelay: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	start := time.Now()
	_, err = client.Run(context.Background(), "echo hi")
	if err == nil {
		t.Fatal("expected authentication error")
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("authentication failure was retried (took %v)", time.Since(start))
	}
}

func TestRun_ThroughGateway(t *testing.T) {
	keyPair := generateTestKey(t)
	gateway := newTestServer(t, keyPair.PublicKey, echoHandler)
	target := newTestServer(t, keyPair.PublicKey, echoHandler)

	gwHost, gwPort := gateway.hostPort()
	host, port := target.hostPort()

	client, err := NewClient(&Config{
		Host:       host,
		Port:       port,
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		Gateway:    &Gateway{Host: gwHost, Port: gwPort, User: "jdoe"},
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	out, err := client.Run(context.Background(), "echo via-gateway")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stdout != "via-gateway\n" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
	if gateway.forwarded.Load() != 1 {
		t.Errorf("gateway forwarded %d connections, want 1", gateway.forwarded.Load())
	}
	if gateway.sessions.Load() != 0 {
		t.Errorf("command ran on the gateway")
	}
	if target.sessions.Load() != 1 {
		t.Errorf("target ran %d sessions, want 1", target.sessions.Load())
	}
}
