package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/stackfleet/internal/util/naming"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

// RemainderPolicy decides what happens to hosts left over when the deployed
// host count is not a multiple of the group size.
type RemainderPolicy string

const (
	// RemainderKeep forms a final, smaller group from the leftover hosts.
	RemainderKeep RemainderPolicy = "keep"
	// RemainderDrop leaves the leftover hosts unused.
	RemainderDrop RemainderPolicy = "drop"
	// RemainderError refuses to partition an uneven host list.
	RemainderError RemainderPolicy = "error"
)

// IsValid reports whether p is a known policy.
func (p RemainderPolicy) IsValid() bool {
	switch p {
	case RemainderKeep, RemainderDrop, RemainderError:
		return true
	default:
		return false
	}
}

// Config is the full description of one provisioning run.
type Config struct {
	// Project prefixes the scheduler job name and the metrics job.
	Project string `yaml:"project"`

	// Site, Cluster and Switch select where nodes are reserved.
	Site    string `yaml:"site"`
	Cluster string `yaml:"cluster,omitempty"`
	Switch  string `yaml:"switch,omitempty"`

	// Walltime of the reservation, HH:MM:SS.
	Walltime string `yaml:"walltime"`

	// Image is the environment deployed onto every node.
	Image string `yaml:"image"`

	Reservation ReservationConfig `yaml:"reservation"`
	Imaging     ImagingConfig     `yaml:"imaging"`
	Groups      GroupsConfig      `yaml:"groups"`
	Installer   InstallerConfig   `yaml:"installer"`
	Verify      VerifyConfig      `yaml:"verify"`
	SSH         SSHConfig         `yaml:"ssh"`
	Metrics     MetricsConfig     `yaml:"metrics,omitempty"`
	Report      ReportConfig      `yaml:"report,omitempty"`

	// CheckOnly skips imaging and installation: the fleet of an existing job
	// is only checked for reachability and its controllers verified.
	CheckOnly bool `yaml:"checkOnly,omitempty"`

	// Strict makes a partially failed verification exit non-zero.
	Strict bool `yaml:"strict,omitempty"`
}

// ReservationConfig controls the scheduler job.
type ReservationConfig struct {
	// Enabled submits a new job. When false, JobID must name a running job.
	Enabled bool `yaml:"enabled"`
	JobID   int  `yaml:"jobId,omitempty"`

	// Overlay reserves and enables a kavlan overlay network with the nodes.
	Overlay bool `yaml:"overlay"`

	// KeepAlive keeps a job reserved by this run after the run ends.
	KeepAlive bool `yaml:"keepAlive,omitempty"`
}

// ImagingConfig controls OS deployment.
type ImagingConfig struct {
	// Enabled re-images the nodes. When false, nodes are only checked.
	Enabled bool `yaml:"enabled"`

	// Retries is the imaging retry budget when Enabled. Zero falls back to
	// DefaultImagingTries since a zero budget only checks the nodes; disable
	// imaging to get that behaviour.
	Retries int `yaml:"retries"`

	// CheckCommand is run on each node when imaging is skipped.
	CheckCommand string `yaml:"checkCommand,omitempty"`
}

// GroupsConfig controls the partition of the deployed fleet.
type GroupsConfig struct {
	NodesPerGroup int `yaml:"nodesPerGroup"`
	Count         int `yaml:"count"`

	// MinNodes overrides the number of deployed nodes required to proceed.
	// Zero means NodesPerGroup * Count.
	MinNodes int `yaml:"minNodes,omitempty"`

	Remainder RemainderPolicy `yaml:"remainder"`
}

// InstallerConfig describes the externally supplied installer payload.
type InstallerConfig struct {
	// Payload is a local file or directory, or an s3://bucket/key object.
	Payload string `yaml:"payload"`

	// Entrypoint is executed inside the payload copy with the host file as
	// its only argument.
	Entrypoint string `yaml:"entrypoint"`

	// StagingDir holds per-group scratch workspaces.
	StagingDir string `yaml:"stagingDir"`

	// LaunchDelay spaces the start of consecutive group installations.
	// Unset means DefaultLaunchDelay; an explicit zero starts every group at
	// once.
	LaunchDelay *time.Duration `yaml:"launchDelay,omitempty"`

	// RequiredTools must be found in PATH before installing.
	RequiredTools []string `yaml:"requiredTools,omitempty"`
}

// Stagger returns the delay between consecutive group installations.
func (c InstallerConfig) Stagger() time.Duration {
	return ptr.Deref(c.LaunchDelay, DefaultLaunchDelay)
}

// VerifyConfig controls controller discovery.
type VerifyConfig struct {
	ProbeCommand string `yaml:"probeCommand"`
}

// SSHConfig holds connection parameters for frontend and node access.
type SSHConfig struct {
	User           string `yaml:"user"`
	Port           int    `yaml:"port"`
	PrivateKeyPath string `yaml:"privateKeyPath"`

	// Gateway is an optional jump host used to reach the testbed.
	Gateway     string `yaml:"gateway,omitempty"`
	GatewayUser string `yaml:"gatewayUser,omitempty"`

	// Frontend runs the scheduler and imaging commands. Defaults to the
	// site frontend.
	Frontend     string `yaml:"frontend,omitempty"`
	FrontendUser string `yaml:"frontendUser,omitempty"`

	// Concurrency bounds the number of simultaneous SSH sessions.
	Concurrency int `yaml:"concurrency"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway,omitempty"`
	Job         string `yaml:"job,omitempty"`
}

// ReportConfig controls where the run report is stored.
type ReportConfig struct {
	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config locates an S3-compatible bucket. Credentials are read from
// STACKFLEET_S3_ACCESS_KEY and STACKFLEET_S3_SECRET_KEY.
type S3Config struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// Enabled reports whether a bucket is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// New returns a configuration with every default applied.
func New() *Config {
	cfg := &Config{
		Reservation: ReservationConfig{Enabled: true, Overlay: true},
		Imaging:     ImagingConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Project == "" {
		c.Project = DefaultProject
	}
	if c.Walltime == "" {
		c.Walltime = DefaultWalltime
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Imaging.Enabled && c.Imaging.Retries == 0 {
		c.Imaging.Retries = DefaultImagingTries
	}
	if c.Imaging.CheckCommand == "" {
		c.Imaging.CheckCommand = DefaultCheckCommand
	}
	if c.Groups.NodesPerGroup == 0 {
		c.Groups.NodesPerGroup = DefaultNodesPerGroup
	}
	if c.Groups.Count == 0 {
		c.Groups.Count = DefaultGroupCount
	}
	if c.Groups.Remainder == "" {
		c.Groups.Remainder = RemainderKeep
	}
	if c.Installer.Entrypoint == "" {
		c.Installer.Entrypoint = DefaultEntrypoint
	}
	if c.Installer.StagingDir == "" {
		c.Installer.StagingDir = filepath.Join(os.TempDir(), DefaultProject)
	}
	if c.Installer.LaunchDelay == nil {
		c.Installer.LaunchDelay = ptr.To(DefaultLaunchDelay)
	}
	if len(c.Installer.RequiredTools) == 0 {
		c.Installer.RequiredTools = []string{"bash"}
	}
	if c.Verify.ProbeCommand == "" {
		c.Verify.ProbeCommand = DefaultProbeCommand
	}
	if c.SSH.User == "" {
		c.SSH.User = DefaultSSHUser
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.SSH.PrivateKeyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.SSH.PrivateKeyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
	}
	if c.SSH.Concurrency == 0 {
		c.SSH.Concurrency = DefaultConcurrency
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}
}

// RequiredNodes returns the number of deployed nodes needed to proceed.
func (c *Config) RequiredNodes() int {
	if c.Groups.MinNodes > 0 {
		return c.Groups.MinNodes
	}
	return c.Groups.NodesPerGroup * c.Groups.Count
}

// RequestedNodes returns the number of nodes asked from the scheduler.
func (c *Config) RequestedNodes() int {
	return c.Groups.NodesPerGroup * c.Groups.Count
}

// ImagingRetries returns the retry budget handed to the imager: the
// configured budget when imaging is requested, zero otherwise. Check mode
// never re-images.
func (c *Config) ImagingRetries() int {
	if !c.ReimageNodes() {
		return 0
	}
	return c.Imaging.Retries
}

// ReimageNodes reports whether nodes are re-imaged rather than checked.
func (c *Config) ReimageNodes() bool {
	return c.Imaging.Enabled && !c.CheckOnly
}

// FrontendHost returns the host running scheduler and imaging commands.
func (c *Config) FrontendHost() string {
	if c.SSH.Frontend != "" {
		return c.SSH.Frontend
	}
	return naming.Frontend(strings.ToLower(c.Site))
}

// FrontendUser returns the account used on the frontend.
func (c *Config) FrontendUser() string {
	if c.SSH.FrontendUser != "" {
		return c.SSH.FrontendUser
	}
	if c.SSH.GatewayUser != "" {
		return c.SSH.GatewayUser
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return c.SSH.User
}
