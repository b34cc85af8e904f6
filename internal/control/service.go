// Package control wires stores, the classification engine and the network
// surfaces into one runnable service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/classification/health"
	"github.com/vietddude/triage/internal/core/config"
	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/core/worker"
	redisclient "github.com/vietddude/triage/internal/infra/redis"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/memory"
	"github.com/vietddude/triage/internal/infra/storage/postgres"
	"github.com/vietddude/triage/internal/infra/tracing"
)

const (
	// grpcServiceName is the name reported by the gRPC health service.
	grpcServiceName = "triage.v1.Classifier"
	tracerName      = "github.com/vietddude/triage/engine"
)

// Service is the main application struct that manages the engine lifecycle.
type Service struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	healthMon    *health.Monitor
	healthServer *health.Server
	pruner       *worker.Pruner
	grpcServer   *grpc.Server
	grpcHealth   *grpchealth.Server
	store        *memory.MemoryStorage
	sessions     *postgres.SessionRepo
	db           *postgres.DB
	redisClient  *redisclient.Client
	tracer       *sdktrace.TracerProvider
	log          *slog.Logger
}

// NewService creates a Service with all dependencies initialized. Postgres
// is used when database.url is set, else Redis when redis.url is set, else
// process memory.
func NewService(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{cfg: cfg, log: log}

	// 1. Initialize Storage
	var (
		sessions storage.SessionStore
		history  storage.HistoryStore
		audit    interface {
			storage.AuditSink
			storage.AuditReader
		}
	)
	pingers := make(map[string]storage.Pinger)

	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		s.db = db
		s.sessions = postgres.NewSessionRepo(db)
		sessions = s.sessions
		historyRepo := postgres.NewHistoryRepo(db)
		auditRepo := postgres.NewAuditRepo(db)
		history = historyRepo
		audit = auditRepo
		s.pruner = worker.NewPruner(cfg.Database.Retention, map[string]worker.Prunable{
			"audit_events":      auditRepo,
			"recovery_outcomes": historyRepo,
		}, log)
		pingers["postgres"] = db
		log.Info("Using PostgreSQL storage")

	case cfg.Redis.URL != "":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redisClient = client
		sessions = client
		history = client
		audit = memory.NewAuditLog(0, log)
		pingers["redis"] = client
		log.Info("Using Redis storage")

	default:
		store, err := memory.NewMemoryStorage(0, 0)
		if err != nil {
			return nil, err
		}
		s.store = store
		sessions = store
		history = store
		audit = memory.NewAuditLog(0, log)
		pingers["memory"] = store
		log.Info("Using Memory storage")
	}

	// A configured Redis next to Postgres still serves session lookups.
	if s.db != nil && cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redisClient = client
		sessions = client
		pingers["redis"] = client
		log.Info("Using Redis for session lookup")
	}

	// 2. Tracing
	tp, err := tracing.Init(ctx, cfg.Tracing,
		attribute.String("triage.scoring_version", cfg.Scoring.Version),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.tracer = tp

	// 3. Engine and health
	s.healthMon = health.NewMonitor(pingers, cfg.Scoring.Version, health.DefaultWindow)
	eng, err := engine.New(sessions, history, cfg.EngineConfig(),
		engine.WithLogger(log),
		engine.WithTracer(tp.Tracer(tracerName)),
		engine.WithAuditSink(audit),
		engine.WithObserver(s.healthMon),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}
	s.engine = eng
	s.healthServer = health.NewServer(s.healthMon, eng, cfg.Server.Port, log,
		health.WithAuditTrail(audit),
	)

	if cfg.Server.GRPCPort > 0 {
		s.grpcServer = grpc.NewServer()
		s.grpcHealth = grpchealth.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.grpcHealth)
		s.grpcHealth.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	return s, nil
}

// Engine returns the classification engine.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Ephemeral reports whether the service runs on the in-memory store.
func (s *Service) Ephemeral() bool {
	return s.store != nil
}

// PutSession registers a session with the active session store.
func (s *Service) PutSession(ctx context.Context, sess *domain.Session) error {
	switch {
	case s.redisClient != nil:
		return s.redisClient.PutSession(ctx, sess)
	case s.sessions != nil:
		return s.sessions.Put(ctx, sess)
	case s.store != nil:
		s.store.PutSession(sess)
		return nil
	}
	return errors.New("no session store configured")
}

// Run serves HTTP and gRPC until ctx is cancelled, then shuts down.
func (s *Service) Run(ctx context.Context) error {
	var lis net.Listener
	if s.grpcServer != nil {
		var err error
		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on grpc port: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// Start HTTP Server
	g.Go(func() error {
		s.log.Info("Starting HTTP server", "port", s.cfg.Server.Port)
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Start gRPC health service
	if s.grpcServer != nil {
		g.Go(func() error {
			s.log.Info("Starting gRPC health server", "port", s.cfg.Server.GRPCPort)
			if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			s.syncServingStatus(ctx)
			return nil
		})
	}

	// Start DB Metrics Collector and Pruner
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
	if s.pruner != nil {
		g.Go(func() error {
			s.pruner.Start(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	return g.Wait()
}

// syncServingStatus mirrors the monitor verdict into the gRPC health service.
func (s *Service) syncServingStatus(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := grpc_health_v1.HealthCheckResponse_SERVING
			if s.healthMon.CheckHealth(ctx).SystemStatus == health.StatusCritical {
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
			s.grpcHealth.SetServingStatus(grpcServiceName, status)
		}
	}
}

// Stop stops the servers and closes the stores.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if s.grpcServer != nil {
		s.grpcHealth.Shutdown()
		s.grpcServer.GracefulStop()
	}
	err := s.healthServer.Stop(ctx)
	s.Close()
	return err
}

// Close flushes pending spans and releases store connections.
func (s *Service) Close() {
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.log.Warn("Failed to flush traces", "error", err)
		}
		cancel()
		s.tracer = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close redis", "error", err)
		}
	}
}
