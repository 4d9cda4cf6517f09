package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderPhases(&b, m)

	if len(m.Groups) > 0 {
		renderGroups(&b, m)
	}
	if len(m.Warnings) > 0 {
		renderWarnings(&b, m)
	}

	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("stackfleet: %s", m.Project)
	if m.Site != "" {
		title += fmt.Sprintf(" (%s)", m.Site)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.State == "Done":
		status += readyStyle.Render(m.State)
	case m.State == "Failed":
		status += failedStyle.Render(m.State)
	case m.State == "PartiallyFailed":
		status += warningStyle.Render(m.State)
	case m.State != "":
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(m.State)
	default:
		status += dimStyle.Render("Starting...")
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	pct := int(progress * 100)
	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, pct, eta)
}

func renderPhases(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Phases"))
	b.WriteString("\n")

	for _, phase := range m.Phases {
		var icon string
		var style styleFunc
		dur := ""
		switch {
		case phase.Err != nil:
			icon = crossMark
			style = sf(failedStyle)
		case phase.Done:
			icon = checkMark
			style = sf(readyStyle)
			if phase.EndedAt != nil && !phase.StartedAt.IsZero() {
				dur = formatDuration(phase.EndedAt.Sub(phase.StartedAt))
			}
		case phase.Active:
			icon = currentSpinner(m.SpinnerFrame)
			style = sf(activeStyle)
			dur = formatDuration(time.Since(phase.StartedAt))
		default:
			icon = pending
			style = sf(dimStyle)
		}
		fmt.Fprintf(b, "    %s %-18s %s\n", style(icon), style(phase.Name), dimStyle.Render(dur))
	}
}

func renderGroups(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Groups"))
	b.WriteString("\n")

	for _, g := range m.Groups {
		icon, style, detail := groupIcon(m, g)
		fmt.Fprintf(b, "    %s %-18s %s\n", style(icon), style(fmt.Sprintf("group-%d", g.Ordinal)), detail)
	}
}

func groupIcon(m Model, g GroupStatus) (string, styleFunc, string) {
	switch {
	case g.Verified && g.VerifyErr != nil:
		return crossMark, sf(failedStyle), dimStyle.Render(g.VerifyErr.Error())
	case g.Verified:
		return checkMark, sf(readyStyle), "controllers: " + g.Controllers
	case g.Installed && g.InstallErr != nil:
		return warnMark, sf(warningStyle), dimStyle.Render("install: " + g.InstallErr.Error())
	case g.Installed:
		return currentSpinner(m.SpinnerFrame), sf(activeStyle), dimStyle.Render("installed " + g.ScratchID)
	default:
		return pending, sf(dimStyle), ""
	}
}

func renderWarnings(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Warnings"))
	b.WriteString("\n")

	for _, w := range m.Warnings {
		fmt.Fprintf(b, "    %s %s\n", warningStyle.Render(warnMark), dimStyle.Render(w))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(time.Since(m.StartTime))
	pulse := ""
	if !m.Done && m.Err == nil {
		pulse = "  |  " + currentSpinner(m.SpinnerFrame) + " running"
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed: %s%s  |  q: quit", elapsed, pulse)))
	b.WriteString("\n")
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

// calculateProgress weights every phase equally. Installation and
// verification advance per finished group.
func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}
	if len(m.Phases) == 0 {
		return 0
	}

	var progress float64
	step := 1.0 / float64(len(m.Phases))
	for _, p := range m.Phases {
		switch {
		case p.Done || p.Err != nil:
			progress += step
		case p.Active && len(m.Groups) > 0 && (p.Key == "install" || p.Key == "verify"):
			finished := 0
			for _, g := range m.Groups {
				if (p.Key == "install" && g.Installed) || (p.Key == "verify" && g.Verified) {
					finished++
				}
			}
			progress += step * float64(finished) / float64(len(m.Groups))
		}
	}
	return min(progress, 1.0)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
