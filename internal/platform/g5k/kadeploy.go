package g5k

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/util/naming"
)

const (
	markerOK  = "@@deployed"
	markerKO  = "@@undeployed"
	markerEnd = "@@end"
)

// overlaySuffixRegex matches the kavlan part kadeploy adds to node names
// deployed into an overlay.
var overlaySuffixRegex = regexp.MustCompile(`-kavlan-\d+`)

// Imager deploys environments with kadeploy3.
type Imager struct {
	exec         Executor
	remote       RemoteRunner
	checkCommand string
}

// NewImager creates an imager. exec reaches the site frontend; remote and
// checkCommand are used when only checking already imaged nodes.
func NewImager(exec Executor, remote RemoteRunner, checkCommand string) *Imager {
	return &Imager{exec: exec, remote: remote, checkCommand: checkCommand}
}

// KadeployCommand builds the deployment command for hosts. The node lists
// written by kadeploy are printed between markers on stdout.
func KadeployCommand(image string, hosts []string, overlayID int) string {
	var b strings.Builder
	b.WriteString("ok=$(mktemp) && ko=$(mktemp) || exit 1; ")
	b.WriteString("kadeploy3 -e ")
	b.WriteString(shellQuote(image))
	for _, h := range hosts {
		b.WriteString(" -m ")
		b.WriteString(shellQuote(h))
	}
	if overlayID > 0 {
		fmt.Fprintf(&b, " --vlan %d", overlayID)
	}
	b.WriteString(` -k -o "$ok" -n "$ko" 1>&2; `)
	fmt.Fprintf(&b, `echo %s; cat "$ok"; echo %s; cat "$ko"; echo %s; rm -f "$ok" "$ko"`, markerOK, markerKO, markerEnd)
	return b.String()
}

// Deploy images req.Hosts, or only checks them when req.CheckOnly is set.
// Hosts failing an attempt are redeployed up to req.Retries more times.
// Every requested host ends up in exactly one of the returned lists.
func (im *Imager) Deploy(ctx context.Context, req fleet.ImagingRequest) (succeeded, failed []string, err error) {
	if len(req.Hosts) == 0 {
		return nil, nil, fmt.Errorf("no hosts to deploy")
	}
	if req.CheckOnly {
		return im.check(ctx, req)
	}
	if req.Image == "" {
		return nil, nil, fmt.Errorf("no image to deploy")
	}

	log := logr.FromContextOrDiscard(ctx)
	pending := slices.Clone(req.Hosts)

	for attempt := 1; attempt <= req.Retries+1 && len(pending) > 0; attempt++ {
		log.Info("Deploying image", "image", req.Image, "hosts", len(pending), "attempt", attempt, "overlay", req.OverlayID)
		start := time.Now()

		ok, err := im.kadeploy(ctx, req.Image, pending, req.OverlayID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			log.Error(err, "Deployment attempt failed", "attempt", attempt)
			continue
		}

		succeeded = append(succeeded, ok...)
		pending = slices.DeleteFunc(pending, func(h string) bool { return slices.Contains(ok, h) })
		log.Info("Deployment attempt finished", "attempt", attempt, "deployed", len(ok), "remaining", len(pending), "duration", time.Since(start).Round(time.Second))
	}

	return succeeded, pending, nil
}

// kadeploy runs one deployment and returns the requested hosts reported as
// deployed.
func (im *Imager) kadeploy(ctx context.Context, image string, hosts []string, overlayID int) ([]string, error) {
	out, err := im.exec.Execute(ctx, KadeployCommand(image, hosts, overlayID))
	if err != nil {
		return nil, fmt.Errorf("kadeploy3 failed: %w", err)
	}

	deployed, _, err := parseKadeployOutput(out)
	if err != nil {
		return nil, err
	}

	var ok []string
	for _, h := range deployed {
		h = overlaySuffixRegex.ReplaceAllString(h, "")
		if slices.Contains(hosts, h) && !slices.Contains(ok, h) {
			ok = append(ok, h)
		}
	}
	return ok, nil
}

func parseKadeployOutput(out string) (deployed, undeployed []string, err error) {
	var section *[]string
	seen := map[string]bool{}

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case markerOK:
			section = &deployed
		case markerKO:
			section = &undeployed
		case markerEnd:
			section = nil
		case "":
		default:
			if section != nil {
				*section = append(*section, line)
			}
		}
		seen[line] = true
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read kadeploy output: %w", err)
	}
	if !seen[markerOK] || !seen[markerEnd] {
		return nil, nil, fmt.Errorf("unexpected kadeploy output: %s", strings.TrimSpace(out))
	}
	return deployed, undeployed, nil
}

// check runs the check command on every host and never re-images. Hosts
// inside an overlay are only reachable under their overlay address; results
// are reported under the requested names.
func (im *Imager) check(ctx context.Context, req fleet.ImagingRequest) (succeeded, failed []string, err error) {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("Checking deployed hosts", "hosts", len(req.Hosts), "overlay", req.OverlayID)

	targets := req.Hosts
	requested := make(map[string]string, len(req.Hosts))
	if req.OverlayID > 0 {
		targets = make([]string, len(req.Hosts))
		for i, h := range req.Hosts {
			addr, err := naming.OverlayAddress(h, req.Site, req.OverlayID)
			if err != nil {
				return nil, nil, err
			}
			targets[i] = addr
		}
	}
	for i, t := range targets {
		requested[t] = req.Hosts[i]
	}

	for _, res := range im.remote.Run(ctx, im.checkCommand, targets) {
		host, ok := requested[res.Host]
		if !ok {
			continue
		}
		delete(requested, res.Host)
		if res.OK() {
			succeeded = append(succeeded, host)
			continue
		}
		log.V(1).Info("Host check failed", "host", res.Host, "exitStatus", res.ExitStatus, "error", res.Err)
		failed = append(failed, host)
	}
	for _, t := range targets {
		if host, ok := requested[t]; ok {
			failed = append(failed, host)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return succeeded, failed, nil
}
