package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/util/logging"
)

// Release deletes a reservation, for jobs kept alive by an earlier run or
// left behind by an interrupted one.
func Release(ctx context.Context, configPath, site string, jobID int, logOpts LogOptions) error {
	if jobID <= 0 {
		return fmt.Errorf("a positive --job-id is required")
	}

	cfg, err := releaseConfig(configPath, site)
	if err != nil {
		return err
	}

	log, err := newLogger(logOpts, nil)
	if err != nil {
		return err
	}
	ctx = logging.IntoContext(ctx, log)

	timeouts := config.LoadTimeouts()
	frontend, _, err := connectFrontend(cfg, timeouts)
	if err != nil {
		return err
	}

	if err := newScheduler(cfg, frontend, timeouts).Release(ctx, jobID, cfg.Site); err != nil {
		return fmt.Errorf("failed to release job %d: %w", jobID, err)
	}

	fmt.Fprintf(stdout, "Job %d on %s released.\n", jobID, cfg.Site)
	return nil
}

// releaseConfig loads the configuration, falling back to defaults when a
// site is given and no config file exists.
func releaseConfig(configPath, site string) (*config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		if configPath != "" || site == "" {
			return nil, err
		}
		cfg = config.New()
	}
	if site != "" {
		cfg.Site = site
	}
	if cfg.Site == "" {
		return nil, fmt.Errorf("no site configured: pass --site or a config file")
	}
	return cfg, nil
}
