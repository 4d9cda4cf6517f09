package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// WizardResult holds the user's choices from the init wizard.
type WizardResult struct {
	Site          string
	Cluster       string
	NodesPerGroup int
	Groups        int
	Walltime      string
	Payload       string
	Overlay       bool
}

// RunWizard asks the handful of questions needed to describe a run.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	result := &WizardResult{
		Site:          "nancy",
		NodesPerGroup: DefaultNodesPerGroup,
		Groups:        DefaultGroupCount,
		Walltime:      DefaultWalltime,
		Overlay:       true,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Site").
				Description("Testbed site hosting the reservation").
				Options(
					huh.NewOption("Nancy", "nancy"),
					huh.NewOption("Lyon", "lyon"),
					huh.NewOption("Rennes", "rennes"),
					huh.NewOption("Grenoble", "grenoble"),
					huh.NewOption("Lille", "lille"),
					huh.NewOption("Nantes", "nantes"),
				).
				Value(&result.Site),
			huh.NewInput().
				Title("Cluster (optional)").
				Description("Restrict the reservation to one cluster of the site").
				Placeholder("griffon").
				Value(&result.Cluster),
		),

		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Nodes per group").
				Description("Each group receives one independent installation").
				Options(
					huh.NewOption("1 node", 1),
					huh.NewOption("2 nodes", 2),
					huh.NewOption("3 nodes", 3),
					huh.NewOption("4 nodes", 4),
					huh.NewOption("8 nodes", 8),
				).
				Value(&result.NodesPerGroup),
			huh.NewSelect[int]().
				Title("Number of groups").
				Options(
					huh.NewOption("1 group", 1),
					huh.NewOption("2 groups", 2),
					huh.NewOption("3 groups", 3),
					huh.NewOption("4 groups", 4),
					huh.NewOption("6 groups", 6),
				).
				Value(&result.Groups),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Walltime").
				Description("Reservation length, HH:MM:SS").
				Value(&result.Walltime).
				Validate(validateWalltime),
			huh.NewInput().
				Title("Installer payload").
				Description("Local directory or file, or s3://bucket/key").
				Placeholder("./installer").
				Value(&result.Payload).
				Validate(validatePayload),
			huh.NewConfirm().
				Title("Isolate groups on an overlay network (kavlan)?").
				Value(&result.Overlay),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}

	return result, nil
}

// ToConfig converts the wizard result to a defaulted Config.
func (r *WizardResult) ToConfig() *Config {
	cfg := New()
	cfg.Site = r.Site
	cfg.Cluster = strings.TrimSpace(r.Cluster)
	cfg.Walltime = r.Walltime
	cfg.Groups.NodesPerGroup = r.NodesPerGroup
	cfg.Groups.Count = r.Groups
	cfg.Installer.Payload = r.Payload
	cfg.Reservation.Overlay = r.Overlay
	return cfg
}

func validateWalltime(s string) error {
	if !walltimeRegex.MatchString(s) {
		return fmt.Errorf("walltime must look like HH:MM:SS")
	}
	return nil
}

func validatePayload(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("installer payload is required")
	}
	if strings.HasPrefix(s, "s3://") {
		if _, key, ok := strings.Cut(strings.TrimPrefix(s, "s3://"), "/"); !ok || key == "" {
			return fmt.Errorf("s3 payload must look like s3://bucket/key")
		}
	}
	return nil
}

// Summary renders the key settings for display after init.
func (c *Config) Summary() []string {
	cluster := c.Cluster
	if cluster == "" {
		cluster = "any"
	}
	return []string{
		"Site:       " + c.Site,
		"Cluster:    " + cluster,
		"Groups:     " + strconv.Itoa(c.Groups.Count) + " x " + strconv.Itoa(c.Groups.NodesPerGroup) + " nodes",
		"Walltime:   " + c.Walltime,
		"Image:      " + c.Image,
		"Payload:    " + c.Installer.Payload,
		"Overlay:    " + strconv.FormatBool(c.Reservation.Overlay),
	}
}
