package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate reports every configuration problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.UserID == "" {
		add("user_id is required")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level: unknown level %q", c.Log.Level)
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			add("database.data_dir required for sqlite database")
		}
	default:
		add("database.type: unknown type %q", c.Database.Type)
	}

	switch c.Staging.Type {
	case "temp":
	case "filesystem":
		if c.Staging.StagingDir == "" {
			add("staging.staging_dir required for filesystem staging")
		}
	default:
		add("staging.type: unknown type %q", c.Staging.Type)
	}
	if c.Staging.MaxSize < 0 {
		add("staging.max_size must not be negative")
	}

	if c.Engine.Workers < 1 {
		add("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.MaxRetries < 0 {
		add("engine.max_retries must not be negative")
	}
	if c.Engine.ClaimLease.Duration < 0 {
		add("engine.claim_lease must not be negative")
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.Spec == "" {
			add("scheduler.spec required when the scheduler is enabled")
		} else if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			add("scheduler.spec: %v", err)
		}
	}

	seenPlatform := make(map[string]bool)
	for i, p := range c.Platforms {
		switch p.Type {
		case "instagram", "tiktok":
		default:
			add("platforms[%d]: unknown type %q", i, p.Type)
		}
		if seenPlatform[p.Type] {
			add("platforms[%d]: %s configured twice", i, p.Type)
		}
		seenPlatform[p.Type] = true
		if p.RequestsPerSecond < 0 || p.Burst < 0 {
			add("platforms[%d]: rate limits must not be negative", i)
		}
	}

	seenDest := make(map[string]bool)
	for i, d := range c.Destinations {
		if d.Name == "" {
			add("destinations[%d]: name is required", i)
		} else if seenDest[d.Name] {
			add("destinations[%d]: duplicate name %q", i, d.Name)
		}
		seenDest[d.Name] = true

		switch d.Type {
		case "memory":
		case "jwplayer":
			if d.JWSiteID == "" {
				add("destinations[%d] %s: jw_site_id is required", i, d.Name)
			}
			if d.JWAPISecret == "" {
				add("destinations[%d] %s: jw_api_secret is required (or set BRIDGE_JW_API_SECRET)", i, d.Name)
			}
		case "s3":
			if d.S3Bucket == "" {
				add("destinations[%d] %s: s3_bucket is required", i, d.Name)
			}
		case "filesystem":
			if d.FSRoot == "" {
				add("destinations[%d] %s: fs_root is required", i, d.Name)
			}
		default:
			add("destinations[%d]: unknown type %q", i, d.Type)
		}
	}

	switch c.Encryption.Type {
	case "", "age", "test":
	default:
		add("encryption.type: unknown type %q", c.Encryption.Type)
	}

	return errors.Join(errs...)
}
