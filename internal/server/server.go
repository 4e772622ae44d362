/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/mediaroom/internal/api"
	"github.com/friendsincode/mediaroom/internal/auth"
	"github.com/friendsincode/mediaroom/internal/cache"
	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/db"
	"github.com/friendsincode/mediaroom/internal/eventbus"
	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/history"
	"github.com/friendsincode/mediaroom/internal/media"
	"github.com/friendsincode/mediaroom/internal/room"
	"github.com/friendsincode/mediaroom/internal/slotsource"
	"github.com/friendsincode/mediaroom/internal/store"
	"github.com/friendsincode/mediaroom/internal/telemetry"
	"github.com/friendsincode/mediaroom/internal/web"
)

const (
	snapshotRetention   = 30 * 24 * time.Hour
	maintenanceInterval = time.Hour
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	cache      *cache.Cache
	bus        eventbus.Bus
	snapshots  *store.SnapshotStore
	plays      *store.PlayStore
	recorder   *history.Recorder
	rooms      *room.Manager
	api        *api.API
	webHandler *web.Handler

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("mediaroom"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Screen sockets are long-lived; handlers manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		frameAncestors := "'self'"
		if isEmbedPath(r.URL.Path) {
			// Embedded players are meant to be framed by any site.
			frameAncestors = "*"
		} else {
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		}
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' data: blob: https: http:; connect-src 'self' ws: wss:; frame-src https: http:; frame-ancestors "+frameAncestors+"; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func isEmbedPath(path string) bool {
	return strings.HasPrefix(path, "/embed/")
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	s.db = database
	s.snapshots = store.NewSnapshotStore(database)
	s.plays = store.NewPlayStore(database)

	s.cache = cache.New(cache.Config{
		RedisAddr:      s.cfg.RedisAddr,
		RedisPassword:  s.cfg.RedisPassword,
		RedisDB:        s.cfg.RedisDB,
		SlotsTTL:       s.cfg.CacheTTL,
		DisableOnError: false,
	}, s.logger)
	s.DeferClose(s.cache.Close)

	bus, err := eventbus.New(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	s.recorder = history.NewRecorder(s.plays, s.cfg.InstanceID, s.logger)

	resolver, err := s.buildResolver()
	if err != nil {
		return err
	}

	source, err := NewSource(s.cfg, s.logger)
	if err != nil {
		return err
	}

	locations, err := s.resolveLocations(source)
	if err != nil {
		return err
	}

	// Local events reach subscribers and peers through the bus; only plays
	// made on this instance are recorded.
	publisher := events.Fanout(s.bus, s.recorder)
	base := s.cfg.PlaylistOptions()
	factory := func(loc config.LocationConfig) (*room.Room, error) {
		opts, err := loc.Options(base)
		if err != nil {
			return nil, err
		}
		return room.New(loc, opts, room.Deps{
			Source:          source,
			Cache:           s.cache,
			Snapshots:       s.snapshots,
			Resolver:        resolver,
			Publisher:       publisher,
			RefreshInterval: s.cfg.RefreshInterval,
			Logger:          s.logger,
		})
	}
	s.rooms = room.NewManager(factory, locations, s.cfg.MaxRooms, s.logger)

	var authn *auth.Authenticator
	if s.cfg.AdminPasswordHash != "" && s.cfg.JWTSigningKey != "" {
		authn = &auth.Authenticator{
			Username:     s.cfg.AdminUser,
			PasswordHash: s.cfg.AdminPasswordHash,
			Secret:       []byte(s.cfg.JWTSigningKey),
			TTL:          s.cfg.JWTTTL,
		}
	} else {
		s.logger.Warn().Msg("operator login disabled: MEDIAROOM_ADMIN_PASSWORD_HASH or MEDIAROOM_JWT_SIGNING_KEY not set")
	}
	s.api = api.New(s.rooms, s.plays, s.bus, authn, []byte(s.cfg.JWTSigningKey), s.logger)

	webHandler, err := web.NewHandler(s.cfg.BaseURL, locations, s.logger)
	if err != nil {
		return err
	}
	s.webHandler = webHandler

	return nil
}

func (s *Server) buildResolver() (*media.Resolver, error) {
	resolver := &media.Resolver{AssetBaseURL: s.cfg.AssetBaseURL}
	if s.cfg.S3Bucket == "" && s.cfg.S3Endpoint == "" {
		return resolver, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	signer, err := media.NewS3Signer(ctx, media.S3Config{
		Region:          s.cfg.S3Region,
		Bucket:          s.cfg.S3Bucket,
		Endpoint:        s.cfg.S3Endpoint,
		AccessKeyID:     s.cfg.S3AccessKeyID,
		SecretAccessKey: s.cfg.S3SecretAccessKey,
		UsePathStyle:    s.cfg.S3UsePathStyle,
		PresignTTL:      s.cfg.S3PresignTTL,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("s3 signer: %w", err)
	}
	resolver.Signer = signer
	return resolver, nil
}

// NewSource builds the configured slot source, instrumented with metrics and spans.
func NewSource(cfg *config.Config, logger zerolog.Logger) (slotsource.Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		logger.Info().Str("path", cfg.SlotsFile).Msg("reading slots from file")
		return slotsource.WithTelemetry(slotsource.NewFileSource(cfg.SlotsFile)), nil
	case config.SourceAPI:
		logger.Info().Str("base_url", cfg.APIBaseURL).Msg("fetching slots from backend API")
		return slotsource.WithTelemetry(slotsource.NewAPISource(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout, logger)), nil
	default:
		return nil, fmt.Errorf("unsupported slot source %q", cfg.Source)
	}
}

// resolveLocations merges configured locations with the ones a slots file lists.
func (s *Server) resolveLocations(source slotsource.Source) ([]config.LocationConfig, error) {
	locations, err := s.cfg.ResolveLocations()
	if err != nil {
		return nil, err
	}

	if len(locations) > 0 {
		return locations, nil
	}
	ids, err := slotsource.Locations(source)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not list locations from slot source")
		return locations, nil
	}
	for _, id := range ids {
		locations = append(locations, config.LocationConfig{ID: id})
	}
	return locations, nil
}

// Router exposes the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.rooms != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.rooms.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("room shutdown error")
		}
		cancel()
	}
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("history recorder exited")
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runMaintenance(ctx)
	}()

	if err := s.rooms.StartConfigured(); err != nil {
		s.logger.Error().Err(err).Msg("failed to start configured locations")
	}
}

// runMaintenance prunes old snapshots and publishes pool stats.
func (s *Server) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		db.UpdateConnectionMetrics(s.db)
		n, err := s.snapshots.Prune(ctx, slotsource.DateParam(time.Now().Add(-snapshotRetention)))
		if err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("snapshot prune failed")
		} else if n > 0 {
			s.logger.Info().Int64("removed", n).Msg("pruned old slot snapshots")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","rooms":%d}`, len(s.rooms.List()))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	// Screen control channel; the first screen of a location starts its room.
	s.router.Get("/ws/screen/{locationID}", s.handleScreen)

	s.api.Routes(s.router)
	s.webHandler.Routes(s.router)
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")
	rm, err := s.rooms.Ensure(locationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("location", locationID).Msg("screen rejected")
		status := http.StatusBadRequest
		if errors.Is(err, room.ErrTooManyRooms) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	rm.Hub().ServeWS(w, r)
}
