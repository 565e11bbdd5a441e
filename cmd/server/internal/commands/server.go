package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/eventlive/streamgate/internal/admission"
	"github.com/eventlive/streamgate/internal/logger"
	"github.com/eventlive/streamgate/internal/policy"
	"github.com/eventlive/streamgate/internal/server"
	"github.com/eventlive/streamgate/internal/store"
	memorystore "github.com/eventlive/streamgate/internal/store/memory"
	postgresstore "github.com/eventlive/streamgate/internal/store/postgres"
	"github.com/eventlive/streamgate/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"STREAMGATE_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"STREAMGATE_CORS_ORIGINS"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"STREAMGATE_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"STREAMGATE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Admission     AdmissionFlags     `embed:"" prefix:"admission-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"STREAMGATE_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// AdmissionFlags configures the session admission engine
type AdmissionFlags struct {
	MaxConcurrent    int           `help:"default max concurrent viewers per order when the event has no setting" default:"2" env:"STREAMGATE_ADMISSION_MAX_CONCURRENT"`
	HeartbeatTimeout time.Duration `help:"heartbeat timeout after which sessions are reaped" default:"15s" env:"STREAMGATE_ADMISSION_HEARTBEAT_TIMEOUT"`
	SessionTTL       time.Duration `help:"advisory session token lifetime" default:"30m" env:"STREAMGATE_ADMISSION_SESSION_TTL"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, "streamgate-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		sessionStore store.SessionStore
		orderStore   store.OrderStore
		eventStore   store.EventStore
	)

	switch c.StoreType {
	case "postgres":
		// Create shared connection pool for all PostgreSQL stores
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		// Run migrations if enabled
		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		sessionStore = postgresstore.NewSessionStore(pool)
		orderStore = postgresstore.NewOrderStore(pool)
		eventStore = postgresstore.NewEventStore(pool)

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		// Default to memory stores
		sessionStore = memorystore.NewSessionStore()
		orderStore = memorystore.NewOrderStore()
		eventStore = memorystore.NewEventStore()
		log.Info().Msg("Using in-memory stores")
	}

	engine, err := admission.NewEngine(
		sessionStore,
		orderStore,
		policy.NewEventLimitResolver(eventStore),
		&admission.Config{
			DefaultMaxConcurrent: c.Admission.MaxConcurrent,
			HeartbeatTimeout:     c.Admission.HeartbeatTimeout,
			SessionTTL:           c.Admission.SessionTTL,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create admission engine: %w", err)
	}

	handler := withCORS(c.CORSOrigins, server.NewServer(engine).Handler(log))

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// withCORS adds CORS support for browser player clients.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Tenant-ID", "X-App-ID"},
	})
	return middleware.Handler(h)
}
