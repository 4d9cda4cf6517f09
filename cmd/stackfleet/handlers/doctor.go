package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/platform/s3"
	"github.com/imamik/stackfleet/internal/util/logging"
	"github.com/imamik/stackfleet/internal/util/prerequisites"
)

const frontendProbeTimeout = 30 * time.Second

// DoctorStatus represents the diagnostic status of the local setup.
type DoctorStatus struct {
	Site         string         `json:"site"`
	ConfigErrors []string       `json:"configErrors,omitempty"`
	Tools        []ToolHealth   `json:"tools"`
	Payload      PayloadHealth  `json:"payload"`
	Frontend     FrontendHealth `json:"frontend"`
}

// ToolHealth represents one local tool.
type ToolHealth struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Version  string `json:"version,omitempty"`
}

// PayloadHealth represents the installer payload source.
type PayloadHealth struct {
	Source string `json:"source"`
	Remote bool   `json:"remote"`
	Found  bool   `json:"found"`
}

// FrontendHealth represents frontend reachability.
type FrontendHealth struct {
	Host      string `json:"host"`
	Reachable bool   `json:"reachable"`
	Message   string `json:"message,omitempty"`
}

// Healthy reports whether a run can start with this setup.
func (s *DoctorStatus) Healthy() bool {
	if len(s.ConfigErrors) > 0 || !s.Frontend.Reachable || !s.Payload.Found {
		return false
	}
	for _, t := range s.Tools {
		if t.Required && !t.Found {
			return false
		}
	}
	return true
}

// checkTools runs the local tool checks (for testing injection).
var checkTools = prerequisites.CheckAll

// Doctor validates the configuration, the local tools, the payload and the
// reachability of the site frontend.
func Doctor(ctx context.Context, configPath string, jsonOutput bool, logOpts LogOptions) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(logOpts, nil)
	if err != nil {
		return err
	}
	ctx = logging.IntoContext(ctx, log)

	status := diagnose(ctx, cfg)

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
	} else {
		fmt.Fprint(stdout, renderDoctor(status, isInteractiveTTY()))
	}

	if !status.Healthy() {
		return errors.New("doctor found problems")
	}
	return nil
}

func diagnose(ctx context.Context, cfg *config.Config) *DoctorStatus {
	status := &DoctorStatus{Site: cfg.Site}

	if err := cfg.Validate(); err != nil {
		status.ConfigErrors = splitErrors(err)
	}

	for _, r := range checkTools(cfg.Installer.RequiredTools).Results {
		status.Tools = append(status.Tools, ToolHealth{
			Name:     r.Tool.Name,
			Required: r.Tool.Required,
			Found:    r.Found,
			Version:  r.Version,
		})
	}

	status.Payload = PayloadHealth{Source: cfg.Installer.Payload}
	switch {
	case s3.IsURI(cfg.Installer.Payload):
		status.Payload.Remote = true
		_, _, err := s3.ParseURI(cfg.Installer.Payload)
		status.Payload.Found = err == nil
	case cfg.Installer.Payload != "":
		_, err := os.Stat(cfg.Installer.Payload)
		status.Payload.Found = err == nil
	}

	status.Frontend = probeFrontend(ctx, cfg)
	return status
}

func probeFrontend(ctx context.Context, cfg *config.Config) FrontendHealth {
	health := FrontendHealth{Host: cfg.FrontendHost()}

	frontend, _, err := connectFrontend(cfg, config.LoadTimeouts())
	if err != nil {
		health.Message = err.Error()
		return health
	}

	pctx, cancel := context.WithTimeout(ctx, frontendProbeTimeout)
	defer cancel()
	out, err := frontend.Execute(pctx, "hostname")
	if err != nil {
		health.Message = err.Error()
		return health
	}
	health.Reachable = true
	health.Message = strings.TrimSpace(out)
	return health
}

// splitErrors flattens a joined error into its messages.
func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func renderDoctor(s *DoctorStatus, color bool) string {
	ok, bad, warn := colorize(color, "#22c55e"), colorize(color, "#ef4444"), colorize(color, "#eab308")
	mark := func(good, required bool) string {
		switch {
		case good:
			return ok("[OK]")
		case required:
			return bad("[!!]")
		default:
			return warn("[??]")
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "stackfleet doctor (%s)\n\n", s.Site)

	b.WriteString("Configuration\n")
	if len(s.ConfigErrors) == 0 {
		fmt.Fprintf(&b, "  %s valid\n", mark(true, true))
	}
	for _, e := range s.ConfigErrors {
		fmt.Fprintf(&b, "  %s %s\n", mark(false, true), e)
	}

	b.WriteString("\nLocal tools\n")
	for _, t := range s.Tools {
		detail := t.Version
		if !t.Found {
			detail = "not found in PATH"
		}
		fmt.Fprintf(&b, "  %s %-10s %s\n", mark(t.Found, t.Required), t.Name, detail)
	}

	b.WriteString("\nInstaller payload\n")
	switch {
	case s.Payload.Source == "":
		fmt.Fprintf(&b, "  %s not configured\n", mark(false, true))
	case s.Payload.Remote:
		fmt.Fprintf(&b, "  %s %s (object storage, fetched at run time)\n", mark(s.Payload.Found, true), s.Payload.Source)
	default:
		fmt.Fprintf(&b, "  %s %s\n", mark(s.Payload.Found, true), s.Payload.Source)
	}

	b.WriteString("\nFrontend\n")
	fmt.Fprintf(&b, "  %s %s %s\n", mark(s.Frontend.Reachable, true), s.Frontend.Host, s.Frontend.Message)

	return b.String()
}

// colorize returns a function painting text in hex, or leaving it as is.
func colorize(enabled bool, hex string) func(string) string {
	if !enabled {
		return func(s string) string { return s }
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(hex))
	return func(s string) string { return style.Render(s) }
}
