package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"creator-bridge/internal/api"
	"creator-bridge/internal/bridge"
)

const shutdownTimeout = 15 * time.Second

// engineService runs the sync worker pool under the supervisor. Every
// (re)start first re-enqueues queued records that still have targets.
type engineService struct {
	engine       *bridge.Engine
	recoverLimit int
}

func (s *engineService) Serve(ctx context.Context) error {
	if _, err := s.engine.Recover(ctx, s.recoverLimit); err != nil {
		return err
	}
	return s.engine.Run(ctx)
}

func (s *engineService) String() string { return "sync-engine" }

// schedulerService fires Scheduler.RunOnce on a cron schedule.
type schedulerService struct {
	scheduler *bridge.Scheduler
	spec      string
	logger    bridge.Logger
}

func (s *schedulerService) Serve(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.spec, func() {
		n, err := s.scheduler.RunOnce(ctx)
		if err != nil {
			s.logger.Error("auto-sync scan failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("auto-sync scan enqueued records", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: scheduling auto-sync %q: %v", suture.ErrDoNotRestart, s.spec, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *schedulerService) String() string { return "auto-sync-scheduler" }

// httpService serves the API until the supervisor stops it.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }

// newSupervisor builds the root supervisor with its events logged through zerolog.
func (a *BridgeApp) newSupervisor() *suture.Supervisor {
	hook := (&sutureslog.Handler{Logger: newSlogLogger(a.logger)}).MustHook()
	return suture.New("bridge", suture.Spec{
		EventHook: hook,
		Timeout:   shutdownTimeout,
	})
}

// Run supervises the sync engine and, when enabled, the auto-sync scheduler
// until ctx is cancelled.
func (a *BridgeApp) Run(ctx context.Context) error {
	return a.serve(ctx, a.newSupervisor())
}

// Serve is Run plus the HTTP API on cfg.HTTP.Addr.
func (a *BridgeApp) Serve(ctx context.Context) error {
	handler, err := a.APIHandler()
	if err != nil {
		return err
	}
	sup := a.newSupervisor()
	sup.Add(&httpService{server: &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}})
	a.log.Info("api listening", "addr", a.cfg.HTTP.Addr)
	return a.serve(ctx, sup)
}

// APIHandler returns the HTTP API bound to this app's service.
func (a *BridgeApp) APIHandler() (http.Handler, error) {
	auth, err := a.authenticator()
	if err != nil {
		return nil, err
	}
	return api.NewServer(a.service, auth, a.log).Handler(), nil
}

// IssueToken signs an API token for the configured user.
func (a *BridgeApp) IssueToken(ttl time.Duration) (string, error) {
	auth, err := api.NewAuthenticator(a.cfg.HTTP.JWTSecret, ttl, api.WithNow(a.clock.Now))
	if err != nil {
		return "", fmt.Errorf("http.jwt_secret: %w", err)
	}
	return auth.Sign(a.cfg.UserID)
}

func (a *BridgeApp) authenticator() (*api.Authenticator, error) {
	auth, err := api.NewAuthenticator(a.cfg.HTTP.JWTSecret, 0, api.WithNow(a.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("http.jwt_secret: %w", err)
	}
	return auth, nil
}

func (a *BridgeApp) serve(ctx context.Context, sup *suture.Supervisor) error {
	sup.Add(&engineService{engine: a.engine, recoverLimit: a.cfg.Engine.RecoverLimit})
	if a.cfg.Scheduler.Enabled {
		sup.Add(&schedulerService{scheduler: a.scheduler, spec: a.cfg.Scheduler.Spec, logger: a.log})
	}

	err := <-sup.ServeBackground(ctx)

	if report, rerr := sup.UnstoppedServiceReport(); rerr == nil {
		for _, u := range report {
			a.log.Warn("service did not stop in time", "service", u.Name)
		}
	}
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}
