package bridge

import (
	"fmt"
	"time"
)

const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
)

// Connection is a user's authorized link to a source platform account.
// Records returned by a Store carry sealed tokens; Service.openConnection
// returns a copy with plaintext tokens.
type Connection struct {
	ID            string
	UserID        string
	Platform      string
	AccountID     string
	AccountHandle string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   *time.Time
	IsActive      bool
	CreatedAt     time.Time

	// AutoSync is copied onto records imported through this connection
	// unless the import request sets its own.
	AutoSync             bool
	AutoSyncDestinations []string
	LastCheckedAt        *time.Time
}

// Check returns ErrConnectionUnavailable when the connection is inactive or its token has expired.
func (c *Connection) Check(now time.Time) error {
	if !c.IsActive {
		return fmt.Errorf("%w: connection %s is inactive", ErrConnectionUnavailable, c.ID)
	}
	if c.TokenExpiry != nil && !now.Before(*c.TokenExpiry) {
		return fmt.Errorf("%w: connection %s token expired at %s", ErrConnectionUnavailable, c.ID, c.TokenExpiry.Format(time.RFC3339))
	}
	return nil
}

// ConnectionInput is what the OAuth flow (or an operator) supplies for a new connection.
type ConnectionInput struct {
	Platform      string
	AccountID     string
	AccountHandle string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   *time.Time
}
