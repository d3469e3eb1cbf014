package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vitrine-commerce/vitrine/internal/app"
	"github.com/vitrine-commerce/vitrine/internal/audit"
	audithttp "github.com/vitrine-commerce/vitrine/internal/audit/http"
	"github.com/vitrine-commerce/vitrine/internal/auth"
	"github.com/vitrine-commerce/vitrine/internal/observability"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/rbac/pgstore"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
	"github.com/vitrine-commerce/vitrine/internal/users"
	"github.com/vitrine-commerce/vitrine/jobs"
)

// systemActor is recorded as the author of changes made at startup.
const systemActor = "system"

// infra carries the external connections. Either may be nil when the
// configuration selects in-memory backends.
type infra struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

type services struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	metrics   *observability.Metrics
	broker    *rbac.Broker
	notifier  *rbac.RedisNotifier
	registry  *rbac.Registry
	matrices  *rbac.MatrixStore
	evaluator *rbac.Evaluator
	guard     *session.Guard
	audit     *shared.AuditLogger
}

func newServices(cfg *app.Config, in infra, logger *slog.Logger) (*services, error) {
	metrics := observability.NewMetrics()
	broker := rbac.NewBroker()

	var publisher rbac.Publisher = broker
	var notifier *rbac.RedisNotifier
	if in.redis != nil {
		notifier = rbac.NewRedisNotifier(in.redis, cfg.RBACNotifyChannel, broker, logger)
		publisher = notifier
	}

	var backend rbac.Backend
	switch cfg.RBACBackend {
	case app.BackendPostgres:
		if in.pool == nil {
			return nil, errors.New("postgres rbac backend requires PG_DSN")
		}
		backend = pgstore.New(in.pool)
	case app.BackendMemory:
		backend = rbac.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported rbac backend %q", cfg.RBACBackend)
	}

	var store session.Store
	switch cfg.SessionBackend {
	case app.BackendRedis:
		if in.redis == nil {
			return nil, errors.New("redis session backend requires REDIS_ADDR")
		}
		store = session.NewRedisStore(in.redis)
	case app.BackendMemory:
		store = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.SessionBackend)
	}

	resources := rbac.DefaultResources()
	registry := rbac.NewRegistry(backend, resources, publisher)
	matrices := rbac.NewMatrixStore(backend, resources, publisher)
	evaluator := rbac.NewEvaluator(matrices, metrics, logger)
	guard := session.NewGuard(session.GuardConfig{
		Store:      store,
		Roles:      registry,
		Authorizer: evaluator,
		Matrices:   matrices,
		Observer:   metrics,
		Logger:     logger,
	})

	var audit *shared.AuditLogger
	if in.pool != nil {
		audit = shared.NewAuditLogger(in.pool)
	}

	return &services{
		pool:      in.pool,
		logger:    logger,
		metrics:   metrics,
		broker:    broker,
		notifier:  notifier,
		registry:  registry,
		matrices:  matrices,
		evaluator: evaluator,
		guard:     guard,
		audit:     audit,
	}, nil
}

// start launches the change consumers. They stop when ctx is done.
func (s *services) start(ctx context.Context) {
	changes := s.broker.Subscribe(ctx)
	go func() {
		for c := range changes {
			s.metrics.ObserveChange(string(c.Kind))
			s.logger.Info("rbac change",
				slog.String("kind", string(c.Kind)),
				slog.String("role", string(c.Role)),
				slog.String("actor", c.Actor),
				slog.Bool("remote", c.Origin != ""))
		}
	}()
	if s.audit != nil {
		go rbac.RecordChanges(ctx, s.broker.Subscribe(ctx), s.audit, s.logger)
	}
	if s.notifier != nil {
		go func() {
			if err := s.notifier.Listen(ctx); err != nil {
				s.logger.Error("rbac notifier", slog.Any("error", err))
			}
		}()
	}
}

// loadPresets registers the catalogue roles that are missing.
func (s *services) loadPresets(ctx context.Context, path string) (int, error) {
	cat, err := rbac.LoadCatalogue(path)
	if err != nil {
		return 0, err
	}
	return s.registry.LoadPresets(shared.ContextWithActor(ctx, systemActor), cat)
}

func (s *services) router(cfg *app.Config, accounts auth.Repository, jobHandler *jobs.Handler) http.Handler {
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	mw := rbac.Middleware{Guard: s.guard, Logger: s.logger}
	authService := auth.NewService(accounts, s.guard, cfg.SessionTTL, s.logger)
	params := app.RouterParams{
		Logger:             s.logger,
		Config:             cfg,
		Sessions:           s.guard,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(s.logger, authService, csrf, cfg.IsProduction()),
		SessionHandler:     session.NewHandler(s.guard),
		PermissionsHandler: rbac.NewPermissionsHandler(s.logger, s.registry, s.matrices, mw),
		JobHandler:         jobHandler,
		RBACMiddleware:     mw,
		Metrics:            s.metrics,
	}
	if s.pool != nil {
		params.UsersHandler = users.NewHandler(s.logger, users.NewService(users.NewRepository(s.pool), s.registry, s.audit, s.logger), mw)
		params.AuditHandler = audithttp.NewHandler(s.logger, audit.NewService(audit.NewRepository(s.pool)))
	}
	return app.NewRouter(params)
}
