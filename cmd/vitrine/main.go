package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrine-commerce/vitrine/cmd/vitrine/cli"
	"github.com/vitrine-commerce/vitrine/internal/app"
	"github.com/vitrine-commerce/vitrine/internal/auth"
	"github.com/vitrine-commerce/vitrine/internal/platform/cache"
	"github.com/vitrine-commerce/vitrine/internal/platform/db"
	"github.com/vitrine-commerce/vitrine/internal/rbac/pgstore"
	"github.com/vitrine-commerce/vitrine/jobs"
)

const usage = `usage: vitrine [serve | roles [-role ROLE] [-json] | jobs trigger NAME [ARG] | jobs stats]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		os.Exit(serve(ctx, cfg, logger))
	case "roles":
		os.Exit(roles(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		_, _ = fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (infra, func(), error) {
	var in infra
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	switch {
	case err == nil:
		in.pool = pool
		closers = append(closers, pool.Close)
	case cfg.RBACBackend == app.BackendPostgres:
		return infra{}, cleanup, fmt.Errorf("connect postgres: %w", err)
	default:
		logger.Warn("postgres unavailable, audit and login disabled", slog.Any("error", err))
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	switch {
	case err == nil:
		in.redis = client
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	case cfg.SessionBackend == app.BackendRedis:
		cleanup()
		return infra{}, func() {}, fmt.Errorf("connect redis: %w", err)
	default:
		logger.Warn("redis unavailable, cross-process notifications disabled", slog.Any("error", err))
	}
	return in, cleanup, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return nil
	}
	if err := pgstore.Migrate(ctx, pool); err != nil {
		return err
	}
	return auth.NewRepository(pool).Migrate(ctx)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	in, cleanup, err := connect(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	if err := migrate(ctx, in.pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}

	svc, err := newServices(cfg, in, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return 1
	}
	svc.start(ctx)
	added, err := svc.loadPresets(ctx, cfg.RBACPresetsFile)
	if err != nil {
		logger.Error("load presets", slog.Any("error", err))
		return 1
	}
	logger.Info("presets loaded", slog.Int("added", added))

	var accounts auth.Repository = noUsers{}
	if in.pool != nil {
		accounts = auth.NewRepository(in.pool)
	}

	var jobHandler *jobs.Handler
	if in.redis != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      svc.router(cfg, accounts, jobHandler),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func roles(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("roles", flag.ContinueOnError)
	role := fs.String("role", "", "print the matrix of this role")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in, cleanup, err := connect(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	svc, err := newServices(cfg, in, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return 1
	}
	if cfg.RBACBackend == app.BackendMemory {
		if _, err := svc.loadPresets(ctx, cfg.RBACPresetsFile); err != nil {
			logger.Error("load presets", slog.Any("error", err))
			return 1
		}
	}
	return cli.NewRolesCLI(svc.registry, svc.matrices, svc.registry.Resources()).
		Command(ctx, cli.RolesOptions{Role: *role, JSONOutput: *asJSON})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() {
		_ = jc.Close()
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jc.Trigger(ctx, args[1], arg)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		_, _ = fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		_, _ = fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}

// noUsers rejects every login when no user database is configured.
type noUsers struct{}

func (noUsers) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, errors.New("user database not configured")
}
