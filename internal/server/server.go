// Package server wires the store, job broker, scheduler and model
// providers into the fable HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/config"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/jobs/finalize"
	"github.com/fablepress/fable/internal/jobs/illustrate"
	"github.com/fablepress/fable/internal/jobs/narrative"
	"github.com/fablepress/fable/internal/objstore"
	"github.com/fablepress/fable/internal/providers"
	"github.com/fablepress/fable/internal/server/endpoints"
	"github.com/fablepress/fable/internal/svcctx"
)

// Server is the fable HTTP server. It owns the SQLite store and the
// worker scheduler; when the server shuts down the workers drain first,
// then the store closes.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	story      providers.StoryModel
	image      providers.ImageModel
	objects    *objstore.Client
	logger     *slog.Logger

	store     *storeHandle
	broker    *jobs.Broker
	scheduler *jobs.Scheduler

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	addr    string
	running bool
}

// Config holds server construction options. Story, Image and Objects
// default to clients built from the loaded configuration; tests inject
// mocks here.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default from config, then 8080)
	Port string
	// AppConfig is the loaded application configuration (required).
	AppConfig *config.Config
	// Story overrides the narrative model client.
	Story providers.StoryModel
	// Image overrides the illustration model client.
	Image providers.ImageModel
	// Objects overrides the object storage client.
	Objects *objstore.Client
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, errors.New("server: AppConfig is required")
	}
	if cfg.Host == "" {
		cfg.Host = cfg.AppConfig.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = cfg.AppConfig.Server.Port
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	story := cfg.Story
	if story == nil {
		story = providers.NewOpenAIStory(providers.OpenAIStoryConfig{
			APIKey:  cfg.AppConfig.OpenAI.APIKey,
			BaseURL: cfg.AppConfig.OpenAI.BaseURL,
			Model:   cfg.AppConfig.OpenAI.StoryModel,
			RPM:     cfg.AppConfig.OpenAI.RPM,
		})
	}
	image := cfg.Image
	if image == nil {
		image = providers.NewOpenAIImage(providers.OpenAIImageConfig{
			APIKey:  cfg.AppConfig.OpenAI.APIKey,
			BaseURL: cfg.AppConfig.OpenAI.BaseURL,
			Model:   cfg.AppConfig.OpenAI.ImageModel,
			RPM:     cfg.AppConfig.OpenAI.RPM,
		})
	}
	objects := cfg.Objects
	if objects == nil {
		objects = objstore.New(objstore.Config{
			BaseURL:   cfg.AppConfig.Storage.BaseURL,
			Bucket:    cfg.AppConfig.Storage.Bucket,
			AuthToken: cfg.AppConfig.Storage.AuthToken,
		})
	}

	s := &Server{
		cfg:     cfg.AppConfig,
		story:   story,
		image:   image,
		objects: objects,
		logger:  cfg.Logger,
		store:   &storeHandle{},
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // print assembly renders inline
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the store, starts the worker scheduler and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	st, err := s.store.open(ctx, s.cfg.Store.Path)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("open store: %w", err)
	}
	s.logger.Info("store ready", "path", s.cfg.Store.Path)

	s.broker = jobs.NewBroker(jobs.BrokerConfig{DB: st.DB(), Logger: s.logger})

	deps := jobs.Dependencies{
		Store:   st,
		Broker:  s.broker,
		Story:   s.story,
		Image:   s.image,
		Objects: s.objects,
		Logger:  s.logger,
	}
	s.scheduler = jobs.NewScheduler(jobs.SchedulerConfig{
		Broker: s.broker,
		Deps:   deps,
		Logger: s.logger,
	})
	s.scheduler.Register(narrative.New(), s.cfg.Workers.Narrative)
	s.scheduler.Register(illustrate.New(), s.cfg.Workers.Illustrate)
	s.scheduler.Register(finalize.New(), s.cfg.Workers.Finalize)

	s.services = &svcctx.Services{
		Store:  st,
		Broker: s.broker,
		Logger: s.logger,
	}

	schedCtx, stopScheduler := context.WithCancel(context.WithoutCancel(ctx))
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		s.scheduler.Run(schedCtx)
	}()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		stopScheduler()
		<-schedDone
		_ = s.store.close()
		s.setNotRunning()
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stopScheduler()
			<-schedDone
			_ = s.store.close()
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown(stopScheduler, schedDone)
}

// shutdown drains in order: stop accepting requests, drain workers,
// close the store.
func (s *Server) shutdown(stopScheduler context.CancelFunc, schedDone <-chan struct{}) error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	stopScheduler()
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		s.logger.Error("scheduler drain timed out")
	}

	if err := s.store.close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's bound listen address. Empty until Start has
// bound the listener.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or scheduler aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store.get() == nil || s.scheduler == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
