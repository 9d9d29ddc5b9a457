package platform

import (
	"fmt"
	"net/http"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/config"
)

// NewPlatformSetFromConfig builds one adapter per configured platform.
func NewPlatformSetFromConfig(cfgs []config.PlatformConfig, httpClient *http.Client) (*bridge.PlatformSet, error) {
	adapters := make([]bridge.PlatformAdapter, 0, len(cfgs))
	for _, c := range cfgs {
		limiter := newLimiter(c.RequestsPerSecond, c.Burst)
		switch c.Type {
		case bridge.PlatformInstagram:
			adapters = append(adapters, NewInstagram(c.BaseURL, httpClient, limiter))
		case bridge.PlatformTikTok:
			adapters = append(adapters, NewTikTok(c.BaseURL, httpClient, limiter))
		default:
			return nil, fmt.Errorf("unknown platform type: %q", c.Type)
		}
	}
	return bridge.NewPlatformSet(adapters...), nil
}
