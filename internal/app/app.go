package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/config"
	"creator-bridge/internal/database"
	"creator-bridge/internal/database/migrations"
	"creator-bridge/internal/destination"
	"creator-bridge/internal/encryption"
	"creator-bridge/internal/media"
	"creator-bridge/internal/platform"
	"creator-bridge/internal/staging"
)

// Options controls how a BridgeApp is built for one CLI invocation.
type Options struct {
	// Operation names the CLI command being run (e.g. "Import", "Serve").
	Operation string

	// Console receives human-readable log lines. Defaults to os.Stderr.
	Console io.Writer

	// Passphrase, when set, is called to unlock connection credentials.
	// Commands that never call a platform leave it nil.
	Passphrase func() (string, error)
}

// BridgeApp is the application layer between the CLI and bridge.Service.
// It constructs all dependencies from config, owns their lifecycle and
// runs the long-lived engine, scheduler and HTTP processes.
type BridgeApp struct {
	cfg       *config.Config
	store     *database.SQLiteStore
	staging   *staging.Area
	encryptor bridge.Encryptor
	engine    *bridge.Engine
	service   *bridge.Service
	scheduler *bridge.Scheduler
	logger    zerolog.Logger
	log       bridge.Logger
	logFile   *os.File
	op        *Operation
	clock     bridge.Clock
}

// NewBridgeApp creates a fully wired BridgeApp from the given config.
// The caller must call Close when done.
func NewBridgeApp(ctx context.Context, cfg *config.Config, opts Options) (*BridgeApp, error) {
	clock := bridge.RealClock{}
	op := NewOperation(opts.Operation, clock.Now())

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	logger, logFile, err := newLogger(cfg.LogDir, cfg.Log.Level, op.ID, console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &zerologAdapter{l: logger}

	a := &BridgeApp{cfg: cfg, logger: logger, log: log, logFile: logFile, op: op, clock: clock}
	if err := a.build(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}
	log.Debug("operation started", "operation", op.Name)
	return a, nil
}

func (a *BridgeApp) build(ctx context.Context, opts Options) error {
	cfg := a.cfg

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.store = store

	area, err := staging.NewAreaFromConfig(cfg.Staging)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}
	a.staging = area

	httpClient := &http.Client{}
	platforms, err := platform.NewPlatformSetFromConfig(cfg.Platforms, httpClient)
	if err != nil {
		return fmt.Errorf("creating platform clients: %w", err)
	}
	destinations, err := destination.NewDestinationSetFromConfig(ctx, cfg.Destinations, httpClient, a.log)
	if err != nil {
		return fmt.Errorf("creating destinations: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	var keys bridge.DecryptionContext
	if opts.Passphrase != nil {
		if keys, err = unlock(enc, opts.Passphrase); err != nil {
			return err
		}
	}

	a.engine = bridge.NewEngine(store, area, platform.NewHTTPFetcher(httpClient), media.NewInspector(),
		destinations, a.log, a.clock, engineConfig(cfg.Engine))
	a.service = bridge.NewService(store, a.engine, platforms, destinations, enc, keys, a.log, a.clock, bridge.UUIDGenerator{})
	a.scheduler = bridge.NewScheduler(store, a.engine, a.log, a.clock, bridge.SchedulerConfig{
		Staleness:  cfg.Scheduler.Staleness.Duration,
		BatchLimit: cfg.Scheduler.BatchLimit,
	})
	return nil
}

func unlock(enc bridge.Encryptor, passphrase func() (string, error)) (bridge.DecryptionContext, error) {
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run `bridge config init`")
	}
	p, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	keys, err := enc.Unlock(p)
	if err != nil {
		return nil, fmt.Errorf("unlocking credentials: %w", err)
	}
	return keys, nil
}

func engineConfig(c config.EngineConfig) bridge.EngineConfig {
	def := bridge.DefaultEngineConfig()
	out := bridge.EngineConfig{
		Workers: c.Workers,
		Retry: bridge.RetryPolicy{
			MaxRetries:     c.MaxRetries,
			InitialBackoff: c.InitialBackoff.Duration,
			MaxBackoff:     c.MaxBackoff.Duration,
		},
		DownloadTimeout: c.DownloadTimeout.Duration,
		UploadTimeout:   c.UploadTimeout.Duration,
		ClaimLease:      c.ClaimLease.Duration,
	}
	if out.Workers <= 0 {
		out.Workers = def.Workers
	}
	if out.Retry.InitialBackoff <= 0 {
		out.Retry.InitialBackoff = def.Retry.InitialBackoff
	}
	if out.Retry.MaxBackoff <= 0 {
		out.Retry.MaxBackoff = def.Retry.MaxBackoff
	}
	if out.DownloadTimeout <= 0 {
		out.DownloadTimeout = def.DownloadTimeout
	}
	if out.UploadTimeout <= 0 {
		out.UploadTimeout = def.UploadTimeout
	}
	if out.ClaimLease <= 0 {
		out.ClaimLease = def.ClaimLease
	}
	return out
}

// UserID is the operator identity CLI commands act as.
func (a *BridgeApp) UserID() string { return a.cfg.UserID }

// Service returns the wired service.
func (a *BridgeApp) Service() *bridge.Service { return a.service }

// Config returns the config the app was built from.
func (a *BridgeApp) Config() *config.Config { return a.cfg }

// Fail records err as the outcome of the operation. Close logs it.
func (a *BridgeApp) Fail(err error) { a.op.Fail(err) }

// Drain re-enqueues queued records that still have targets and processes the
// queue until it is empty. One-shot CLI commands use it in place of Run.
func (a *BridgeApp) Drain(ctx context.Context) error {
	if _, err := a.engine.Recover(ctx, a.cfg.Engine.RecoverLimit); err != nil {
		return err
	}
	return a.engine.Drain(ctx)
}

// StagingSize returns the bytes currently held in the staging area.
func (a *BridgeApp) StagingSize() (int64, error) {
	return a.staging.Size()
}

// BackupDatabase writes a consistent copy of the database to dest.
func (a *BridgeApp) BackupDatabase(ctx context.Context, dest string) error {
	if err := a.store.BackupTo(ctx, dest); err != nil {
		return err
	}
	a.log.Info("database backed up", "dest", dest)
	return nil
}

// Schema returns the CREATE statements of the current schema.
func (a *BridgeApp) Schema(ctx context.Context) (string, error) {
	return a.store.DumpSchema(ctx)
}

// MigrationStatus reports the schema version of the open database.
func (a *BridgeApp) MigrationStatus() (*migrations.Status, error) {
	return migrations.CurrentStatus(a.store.DB())
}

// Close logs the operation outcome and releases the database and log file.
func (a *BridgeApp) Close() error {
	elapsed := a.op.Elapsed(a.clock.Now())
	if a.op.Failed() {
		a.log.Error("operation failed", "operation", a.op.Name, "elapsed", elapsed, "error", a.op.Err)
	} else {
		a.log.Debug("operation finished", "operation", a.op.Name, "elapsed", elapsed.Round(time.Millisecond))
	}
	return a.closeResources()
}

func (a *BridgeApp) closeResources() error {
	var firstErr error
	if a.staging != nil {
		if err := a.staging.Close(); err != nil {
			firstErr = fmt.Errorf("closing staging area: %w", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// InitKeys creates the key pair that seals connection credentials, protected
// by passphrase. It refuses to overwrite existing keys.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("encryption keys already exist at %s", cfg.Encryption.PrivateKeyPath)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("creating encryption keys: %w", err)
	}
	return nil
}
