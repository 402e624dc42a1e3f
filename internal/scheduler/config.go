package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/duesledger/internal/config"
)

const (
	JobLedgerVerify    = "ledger_verify"
	JobStaleClaims     = "stale_claims"
	JobOverdueSnapshot = "overdue_snapshot"
)

// Config controls scheduler intervals and thresholds.
type Config struct {
	RunInterval     time.Duration
	StaleClaimAfter time.Duration
	JobTimeout      time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     15 * time.Minute,
		StaleClaimAfter: 72 * time.Hour,
		JobTimeout:      30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		StaleClaimAfter: time.Duration(cfg.Scheduler.StaleClaimHours) * time.Hour,
		EnabledJobs:     cfg.Scheduler.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = defaults.StaleClaimAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func (c Config) isJobEnabled(job string) bool {
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), job) {
			return true
		}
	}
	return false
}
