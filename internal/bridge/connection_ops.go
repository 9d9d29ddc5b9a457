package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ConnectionCheck is the outcome of TestConnection.
type ConnectionCheck struct {
	ConnectionID  string
	Platform      string
	AccountHandle string
	OK            bool
	Message       string
	LatestVideoID string // empty when the account has no posts
	CheckedAt     time.Time
}

// ConnectionSummary is one account in ConnectionStats.
type ConnectionSummary struct {
	ID            string
	AccountHandle string
	ConnectedAt   time.Time
	LastCheckedAt *time.Time
	AutoSync      bool
}

// PlatformConnections groups the active accounts of one platform.
type PlatformConnections struct {
	Count    int
	Accounts []ConnectionSummary
}

// ConnectionStats summarizes a user's active connections.
type ConnectionStats struct {
	TotalConnections int
	AutoSyncEnabled  int
	Platforms        map[string]*PlatformConnections
}

// TestConnection lists the newest post through the platform adapter to prove
// the stored credentials still work. Upstream and token failures are
// reported on the result; a missing or inactive connection and locked
// credentials are returned as errors.
func (s *Service) TestConnection(ctx context.Context, userID, id string) (*ConnectionCheck, error) {
	stored, err := s.store.GetConnection(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if stored == nil || !stored.IsActive {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	adapter, err := s.platforms.Get(stored.Platform)
	if err != nil {
		return nil, err
	}

	check := &ConnectionCheck{
		ConnectionID:  id,
		Platform:      stored.Platform,
		AccountHandle: stored.AccountHandle,
		CheckedAt:     s.clock.Now(),
	}

	conn, err := s.openConnection(ctx, userID, id)
	if errors.Is(err, ErrCredentialsLocked) {
		return nil, err
	}
	if err == nil {
		var page *ListPage
		if page, err = adapter.ListRecent(ctx, conn, "", 1); err == nil && len(page.Items) > 0 {
			check.LatestVideoID = page.Items[0].ExternalID
		}
	}
	if err != nil {
		check.Message = err.Error()
		s.logger.Warn("connection test failed", "connection", id, "platform", stored.Platform, "error", err)
		return check, nil
	}

	if err := s.store.MarkConnectionChecked(ctx, userID, id, check.CheckedAt); err != nil {
		return nil, err
	}
	check.OK = true
	check.Message = fmt.Sprintf("connected to %s account %s", stored.Platform, stored.AccountID)
	s.logger.Info("connection verified", "connection", id, "platform", stored.Platform)
	return check, nil
}

// SetConnectionAutoSync sets the auto-sync default that Import applies to
// posts from this connection. Disabling clears the destinations.
func (s *Service) SetConnectionAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string) (*Connection, error) {
	for _, d := range destinations {
		if !s.destinations.Has(d) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, d)
		}
	}
	if enabled && len(destinations) == 0 {
		return nil, fmt.Errorf("auto-sync needs at least one destination")
	}
	if !enabled {
		destinations = nil
	}

	ok, err := s.store.SetConnectionAutoSync(ctx, userID, id, enabled, mergeDestinations(destinations, nil))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	conn, err := s.store.GetConnection(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	s.logger.Info("connection auto-sync updated", "connection", id, "enabled", enabled, "destinations", conn.AutoSyncDestinations)
	return conn, nil
}

// ConnectionStats counts active connections per platform.
func (s *Service) ConnectionStats(ctx context.Context, userID string) (*ConnectionStats, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	stats := &ConnectionStats{Platforms: make(map[string]*PlatformConnections)}
	for _, c := range conns {
		if !c.IsActive {
			continue
		}
		stats.TotalConnections++
		if c.AutoSync {
			stats.AutoSyncEnabled++
		}
		p := stats.Platforms[c.Platform]
		if p == nil {
			p = &PlatformConnections{}
			stats.Platforms[c.Platform] = p
		}
		p.Count++
		p.Accounts = append(p.Accounts, ConnectionSummary{
			ID:            c.ID,
			AccountHandle: c.AccountHandle,
			ConnectedAt:   c.CreatedAt,
			LastCheckedAt: c.LastCheckedAt,
			AutoSync:      c.AutoSync,
		})
	}
	return stats, nil
}

// connectionAutoSync returns the auto-sync default of conn restricted to
// destinations that are still configured.
func (s *Service) connectionAutoSync(conn *Connection) (AutoSync, bool) {
	if !conn.AutoSync {
		return AutoSync{}, false
	}
	dests := slices.DeleteFunc(slices.Clone(conn.AutoSyncDestinations), func(d string) bool {
		return !s.destinations.Has(d)
	})
	if len(dests) == 0 {
		return AutoSync{}, false
	}
	return AutoSync{Enabled: true, Destinations: dests}, true
}
