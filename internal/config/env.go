package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Overrides are the settings that may come from the environment instead of the file.
// Set values replace what the file says.
type Overrides struct {
	JWAPISecret       string `env:"BRIDGE_JW_API_SECRET"`
	S3AccessKeyID     string `env:"BRIDGE_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"BRIDGE_S3_SECRET_ACCESS_KEY"`
	JWTSecret         string `env:"BRIDGE_JWT_SECRET"`
	LogLevel          string `env:"BRIDGE_LOG_LEVEL"`
}

// ApplyEnv reads Overrides from the process environment and applies them to cfg.
func ApplyEnv(cfg *Config) error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	o.Apply(cfg)
	return nil
}

// ApplyEnvFrom is ApplyEnv over an explicit environment, for tests and embedding.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	var o Overrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	o.Apply(cfg)
	return nil
}

// Apply copies every non-empty override into cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.JWTSecret != "" {
		cfg.HTTP.JWTSecret = o.JWTSecret
	}
	for i := range cfg.Destinations {
		d := &cfg.Destinations[i]
		switch d.Type {
		case "jwplayer":
			if o.JWAPISecret != "" {
				d.JWAPISecret = o.JWAPISecret
			}
		case "s3":
			if o.S3AccessKeyID != "" {
				d.S3AccessKeyID = o.S3AccessKeyID
			}
			if o.S3SecretAccessKey != "" {
				d.S3SecretAccessKey = o.S3SecretAccessKey
			}
		}
	}
}
