package bridge

import (
	"context"
	"fmt"
)

// Service is the orchestration layer behind the CLI and HTTP surfaces.
// Every method takes the authenticated user id and never reads another
// user's records.
type Service struct {
	store        Store
	engine       *Engine
	platforms    *PlatformSet
	destinations *DestinationSet
	encryptor    Encryptor
	keys         DecryptionContext
	logger       Logger
	clock        Clock
	idgen        IDGenerator
	retry        RetryPolicy
}

// NewService creates a Service. keys may be nil when the caller has not
// unlocked connection credentials; operations that call a platform then
// fail with ErrCredentialsLocked.
func NewService(store Store, engine *Engine, platforms *PlatformSet, destinations *DestinationSet, encryptor Encryptor, keys DecryptionContext, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:        store,
		engine:       engine,
		platforms:    platforms,
		destinations: destinations,
		encryptor:    encryptor,
		keys:         keys,
		logger:       logger,
		clock:        clock,
		idgen:        idgen,
		retry:        engine.cfg.Retry,
	}
}

// Engine returns the sync engine the service enqueues into.
func (s *Service) Engine() *Engine { return s.engine }

// Destinations returns the configured destination names.
func (s *Service) Destinations() []string { return s.destinations.Names() }

// AddConnection seals the tokens and stores a new active connection.
func (s *Service) AddConnection(ctx context.Context, userID string, in ConnectionInput) (*Connection, error) {
	if _, err := s.platforms.Get(in.Platform); err != nil {
		return nil, err
	}
	if in.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	sealedAccess, err := s.encryptor.Seal(in.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("sealing access token: %w", err)
	}
	var sealedRefresh string
	if in.RefreshToken != "" {
		if sealedRefresh, err = s.encryptor.Seal(in.RefreshToken); err != nil {
			return nil, fmt.Errorf("sealing refresh token: %w", err)
		}
	}

	conn := &Connection{
		ID:            s.idgen.New(),
		UserID:        userID,
		Platform:      in.Platform,
		AccountID:     in.AccountID,
		AccountHandle: in.AccountHandle,
		AccessToken:   sealedAccess,
		RefreshToken:  sealedRefresh,
		TokenExpiry:   in.TokenExpiry,
		IsActive:      true,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	s.logger.Info("connection added", "connection", conn.ID, "platform", conn.Platform, "account", conn.AccountID)
	return conn, nil
}

// ListConnections returns the user's connections. Tokens stay sealed.
func (s *Service) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return conns, nil
}

// DeactivateConnection marks a connection inactive. Records using it fail
// permanently until it is replaced.
func (s *Service) DeactivateConnection(ctx context.Context, userID, id string) error {
	ok, err := s.store.SetConnectionActive(ctx, userID, id, false)
	if err != nil {
		return fmt.Errorf("deactivating connection: %w", err)
	}
	if !ok {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	s.logger.Info("connection deactivated", "connection", id)
	return nil
}

// openConnection loads a usable connection and returns a copy with plaintext tokens.
func (s *Service) openConnection(ctx context.Context, userID, id string) (*Connection, error) {
	conn, err := s.store.GetConnection(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: connection %s not found", ErrConnectionUnavailable, id)
	}
	if err := conn.Check(s.clock.Now()); err != nil {
		return nil, err
	}
	if s.keys == nil {
		return nil, ErrCredentialsLocked
	}

	open := *conn
	if open.AccessToken, err = s.keys.Open(conn.AccessToken); err != nil {
		return nil, fmt.Errorf("opening access token: %w", err)
	}
	if conn.RefreshToken != "" {
		if open.RefreshToken, err = s.keys.Open(conn.RefreshToken); err != nil {
			return nil, fmt.Errorf("opening refresh token: %w", err)
		}
	}
	return &open, nil
}
