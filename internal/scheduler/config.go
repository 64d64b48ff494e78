package scheduler

import (
	"time"

	"github.com/smallbiznis/boxoffice/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// LockTTL bounds how long one replica may hold the sweep lock.
	LockTTL time.Duration
	// RecoveryDelay is how long a paid order may wait for its confirmation
	// email before the recovery job resends it.
	RecoveryDelay  time.Duration
	RecoveryWindow time.Duration
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		BatchSize:      100,
		JobTimeout:     30 * time.Second,
		LockTTL:        2 * time.Minute,
		RecoveryDelay:  10 * time.Minute,
		RecoveryWindow: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RecoveryDelay <= 0 {
		c.RecoveryDelay = defaults.RecoveryDelay
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = defaults.RecoveryWindow
	}
	return c
}
