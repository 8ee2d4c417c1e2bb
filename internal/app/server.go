package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	httpAdapter "gateway/internal/adapter/http"
	"gateway/internal/config"
	"gateway/internal/configwatch"
	"gateway/internal/dockerevents"
	"gateway/internal/health"
	"gateway/internal/proxy"
)

// Server is the assembled gateway: the HTTP adapter, the Container Event
// Listener, and (if configured) the File Watcher, all driving one Proxy
// Engine through the Config Aggregator.
type Server struct {
	config *config.Config

	httpAdapter *httpAdapter.Adapter

	dockerListener *dockerevents.Listener
	watcher        *configwatch.Watcher

	engine           *proxy.Engine
	healthController *health.Controller
	snapshotState    *snapshotState
	aggregatorState  *aggregatorState

	cancelListener context.CancelFunc
	listenerDone   chan struct{}

	logger *slog.Logger
}

// NewServer builds a gateway Server from cfg.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	builder := NewBuilder(cfg, logger)
	return builder.Build()
}

// Start begins container discovery, file watching (if configured), and the
// HTTP listener. It is non-blocking: it returns once the listener is bound
// and the first Config Aggregator pass has run, not once the server stops.
func (s *Server) Start(ctx context.Context) error {
	listenerCtx, cancel := context.WithCancel(context.Background())
	s.cancelListener = cancel
	s.listenerDone = make(chan struct{})

	go func() {
		defer close(s.listenerDone)
		err := s.dockerListener.Run(listenerCtx, func(containers []dockerevents.Container) {
			s.aggregatorState.setContainers(containers)
			rebuild(s.aggregatorState, s.snapshotState, s.engine, s.healthController, s.logger)
		})
		if err != nil && err != context.Canceled {
			s.logger.Error("docker event listener stopped", "error", err)
		}
	}()

	if s.watcher != nil {
		s.watcher.Start()
	}

	startupCtx, cancelStartup := context.WithCancel(ctx)

	errCh := make(chan error, 1)
	startedCh := make(chan struct{}, 1)

	go func() {
		s.logger.Info("starting HTTP listener", "port", s.config.HTTP.Port)
		if err := s.httpAdapter.Start(startupCtx); err != nil {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		startedCh <- struct{}{}
	}()

	select {
	case err := <-errCh:
		cancelStartup()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
		return err
	case <-startedCh:
	case <-time.After(5 * time.Second):
		cancelStartup()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
		return fmt.Errorf("timeout waiting for HTTP listener to start")
	case <-ctx.Done():
		cancelStartup()
		return ctx.Err()
	}

	cancelStartup()
	s.logger.Info("gateway started successfully")
	return nil
}

// Stop drains the HTTP listener, stops container discovery and file
// watching, and waits for the Health Controller's probe tasks to exit.
func (s *Server) Stop(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.httpAdapter.Stop(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
			mu.Unlock()
		}
	}()

	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.watcher.Stop(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stopping config watcher: %w", err))
				mu.Unlock()
			}
		}()
	}

	if s.cancelListener != nil {
		s.cancelListener()
		<-s.listenerDone
	}

	s.healthController.Stop()

	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("gateway stopped successfully")
	return nil
}
