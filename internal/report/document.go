package report

import (
	"errors"
	"time"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/orchestration"
)

// Document is the serializable form of a run result.
type Document struct {
	State         orchestration.State        `json:"state"`
	JobID         int                        `json:"jobId,omitempty"`
	Site          string                     `json:"site,omitempty"`
	OverlayID     int                        `json:"overlayId,omitempty"`
	ReservedByRun bool                       `json:"reservedByRun"`
	Released      bool                       `json:"released"`
	StartedAt     time.Time                  `json:"startedAt"`
	Duration      string                     `json:"duration"`
	Deployed      []fleet.Host               `json:"deployed"`
	FailedHosts   []string                   `json:"failedHosts,omitempty"`
	Groups        []Group                    `json:"groups"`
	History       []orchestration.Transition `json:"history"`
	Error         string                     `json:"error,omitempty"`
}

// Group is the outcome of one group.
type Group struct {
	Ordinal      int      `json:"ordinal"`
	Hosts        []string `json:"hosts"`
	ScratchID    string   `json:"scratchId,omitempty"`
	InstallError string   `json:"installError,omitempty"`
	Controllers  []string `json:"controllers"`
	FailedHosts  []string `json:"failedHosts,omitempty"`
	Verified     bool     `json:"verified"`
}

// NewDocument builds the document of result.
func NewDocument(result *orchestration.Result) *Document {
	doc := &Document{
		State:         result.State,
		JobID:         result.Reservation.JobID,
		Site:          result.Reservation.Site,
		OverlayID:     result.Reservation.OverlayID,
		ReservedByRun: result.ReservedByRun,
		Released:      result.Released,
		StartedAt:     result.StartedAt,
		Duration:      result.Duration.Round(time.Second).String(),
		Deployed:      result.Deployment.Succeeded,
		FailedHosts:   failedHosts(result),
		History:       result.History,
		Groups:        make([]Group, 0, len(result.Groups)),
	}
	if result.Err != nil {
		doc.Error = result.Err.Error()
	}

	for _, g := range result.Groups {
		doc.Groups = append(doc.Groups, Group{Ordinal: g.Ordinal, Hosts: g.Addresses(), Controllers: []string{}})
	}
	for _, inst := range result.Installs {
		if grp := doc.group(inst.Group.Ordinal); grp != nil {
			grp.ScratchID = inst.ScratchID
			if inst.Err != nil {
				grp.InstallError = inst.Err.Error()
			}
		}
	}
	for _, v := range result.Verifications {
		if grp := doc.group(v.Group.Ordinal); grp != nil {
			grp.Controllers = v.Controllers
			grp.FailedHosts = v.FailedHosts
			grp.Verified = v.OK()
		}
	}
	return doc
}

func (d *Document) group(ordinal int) *Group {
	for i := range d.Groups {
		if d.Groups[i].Ordinal == ordinal {
			return &d.Groups[i]
		}
	}
	return nil
}

// failedHosts returns the failing host set of the stage that stopped the
// run, or the hosts that failed imaging when the run went on.
func failedHosts(result *orchestration.Result) []string {
	var below *fleet.DeploymentBelowThresholdError
	if errors.As(result.Err, &below) {
		return below.FailedHosts
	}
	return result.Deployment.Failed
}
