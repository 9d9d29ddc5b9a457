package destination

import (
	"context"
	"fmt"
	"net/http"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/config"
)

// NewDestinationFromConfig creates a destination adapter based on the config type.
func NewDestinationFromConfig(ctx context.Context, cfg config.DestinationConfig, httpClient *http.Client) (bridge.DestinationAdapter, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDestination(cfg.Name), nil
	case "jwplayer":
		if cfg.JWSiteID == "" || cfg.JWAPISecret == "" {
			return nil, fmt.Errorf("jwplayer destination %s requires jw_site_id and jw_api_secret", cfg.Name)
		}
		return NewJWPlayer(cfg.Name, cfg.JWSiteID, cfg.JWAPISecret, cfg.JWBaseURL, httpClient), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 destination %s requires s3_bucket to be set", cfg.Name)
		}
		return NewS3DestinationFromConfig(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem destination %s requires fs_root to be set", cfg.Name)
		}
		return NewFileSystemDestination(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown destination type: %s", cfg.Type)
	}
}

// NewDestinationSetFromConfig builds every configured destination, each behind a circuit breaker.
func NewDestinationSetFromConfig(ctx context.Context, cfgs []config.DestinationConfig, httpClient *http.Client, logger bridge.Logger) (*bridge.DestinationSet, error) {
	adapters := make([]bridge.DestinationAdapter, 0, len(cfgs))
	for _, c := range cfgs {
		d, err := NewDestinationFromConfig(ctx, c, httpClient)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, NewBreaker(d, c.BreakerFailures, c.BreakerTimeout.Duration, logger))
	}
	return bridge.NewDestinationSet(adapters...), nil
}
