package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/imamik/stackfleet/internal/orchestration"
)

// Format selects the report output.
type Format string

// Report formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const (
	okMark   = "[OK]"
	failMark = "[!!]"
	warnMark = "[??]"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

func plain(s string) string { return s }

func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

type styles struct {
	title, ok, failed, warn, dim, section styleFunc
}

func newStyles(color bool) styles {
	if !color {
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:   sf(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb"))),
		ok:      sf(lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))),
		failed:  sf(lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))),
		warn:    sf(lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))),
		dim:     sf(lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))),
		section: sf(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6"))),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Write renders result to w. Text output is coloured only when w is a
// terminal.
func Write(w io.Writer, result *orchestration.Result, format Format) error {
	doc := NewDocument(result)
	if format == FormatJSON {
		return writeJSON(w, doc)
	}
	_, err := io.WriteString(w, Text(doc, IsTerminal(w)))
	return err
}

func writeJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Text renders doc for humans.
func Text(doc *Document, color bool) string {
	st := newStyles(color)
	var b strings.Builder

	title := "stackfleet run"
	if doc.JobID > 0 {
		title += fmt.Sprintf(" (job %d on %s", doc.JobID, doc.Site)
		if doc.OverlayID > 0 {
			title += fmt.Sprintf(", overlay %d", doc.OverlayID)
		}
		title += ")"
	}
	b.WriteString(st.title(title) + " " + stateStyle(st, doc.State)(string(doc.State)))
	b.WriteString(st.dim(" in "+doc.Duration) + "\n")

	if len(doc.Deployed) > 0 || len(doc.FailedHosts) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.section("Deployment"))
		fmt.Fprintf(&b, "  %d hosts deployed\n", len(doc.Deployed))
		if len(doc.FailedHosts) > 0 {
			fmt.Fprintf(&b, "  %s failed hosts: %s\n", st.warn(warnMark), strings.Join(doc.FailedHosts, ", "))
		}
	}

	if len(doc.Groups) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.section("Groups"))
		for _, g := range doc.Groups {
			writeGroup(&b, st, g)
		}
	}

	if doc.Error != "" {
		fmt.Fprintf(&b, "\n%s %s\n", st.failed("Error:"), doc.Error)
	}
	if doc.ReservedByRun && !doc.Released && doc.JobID > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.dim(fmt.Sprintf("Job %d is still reserved. Release it with: stackfleet release --job-id %d", doc.JobID, doc.JobID)))
	}
	return b.String()
}

func writeGroup(b *strings.Builder, st styles, g Group) {
	name := fmt.Sprintf("group-%d", g.Ordinal)
	switch {
	case g.Verified:
		fmt.Fprintf(b, "  %s %s controllers: %s\n", st.ok(okMark), name, strings.Join(g.Controllers, ", "))
	case len(g.FailedHosts) > 0:
		fmt.Fprintf(b, "  %s %s failed hosts: %s\n", st.failed(failMark), name, strings.Join(g.FailedHosts, ", "))
	default:
		fmt.Fprintf(b, "  %s %s not verified\n", st.dim("[  ]"), name)
	}
	fmt.Fprintf(b, "       %s\n", st.dim("hosts: "+strings.Join(g.Hosts, ", ")))
	if g.InstallError != "" {
		fmt.Fprintf(b, "       %s\n", st.warn("install: "+g.InstallError))
	}
}

func stateStyle(st styles, s orchestration.State) styleFunc {
	switch s {
	case orchestration.StateDone:
		return st.ok
	case orchestration.StatePartiallyFailed:
		return st.warn
	case orchestration.StateFailed:
		return st.failed
	default:
		return st.dim
	}
}

// Uploader stores objects. Implemented by internal/platform/s3.Client.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error
}

// Upload stores the JSON document of result under key.
func Upload(ctx context.Context, up Uploader, bucket, key string, result *orchestration.Result) error {
	data, err := json.MarshalIndent(NewDocument(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := up.PutObject(ctx, bucket, key, "application/json", data); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}
