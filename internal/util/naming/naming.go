package naming

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/imamik/stackfleet/internal/fleet"
)

// DefaultDomain is the testbed DNS domain appended after the site name.
const DefaultDomain = "grid5000.fr"

// Naming functions for testbed resources.
// All names are pure functions of their inputs so that two runs against the
// same reservation produce the same addresses and group layout.

// SiteSuffix returns the domain suffix carried by every physical host of a site.
func SiteSuffix(site string) string {
	return fmt.Sprintf(".%s.%s", site, DefaultDomain)
}

// Frontend returns the frontend host of a site.
func Frontend(site string) string {
	return fmt.Sprintf("frontend.%s.%s", site, DefaultDomain)
}

// OverlayAddress rewrites a physical host address into its overlay network
// address: {node}.{site}.grid5000.fr becomes {node}-kavlan-{id}.{site}.grid5000.fr.
func OverlayAddress(physical, site string, overlayID int) (string, error) {
	if overlayID <= 0 {
		return "", &fleet.MalformedAddressError{Address: physical, Site: site,
			Reason: fmt.Sprintf("invalid overlay id %d", overlayID)}
	}

	suffix := SiteSuffix(site)
	if site == "" || !strings.HasSuffix(physical, suffix) {
		return "", &fleet.MalformedAddressError{Address: physical, Site: site,
			Reason: fmt.Sprintf("expected suffix %q", suffix)}
	}

	node := strings.TrimSuffix(physical, suffix)
	if node == "" || strings.Contains(node, ".") {
		return "", &fleet.MalformedAddressError{Address: physical, Site: site,
			Reason: "missing node name"}
	}

	return fmt.Sprintf("%s-kavlan-%d%s", node, overlayID, suffix), nil
}

// ScratchWorkspace returns a scratch workspace name for one installation task.
func ScratchWorkspace(ordinal int, id uuid.UUID) string {
	return fmt.Sprintf("g%d-%s", ordinal, id)
}

// NewScratchWorkspace mints a fresh scratch workspace name using a random
// (crypto/rand backed) UUID.
func NewScratchWorkspace(ordinal int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate scratch id: %w", err)
	}
	return ScratchWorkspace(ordinal, id), nil
}

// JobName returns the scheduler job name for a run.
func JobName(project string) string {
	return fmt.Sprintf("%s-fleet", project)
}

// ReportKey returns the object key of an uploaded run report.
func ReportKey(prefix string, jobID int) string {
	key := fmt.Sprintf("job-%d/report.json", jobID)
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
