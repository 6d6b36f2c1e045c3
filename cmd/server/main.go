package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/hospital_desk/internal/backup"
	"github.com/Skotchmaster/hospital_desk/internal/config"
	"github.com/Skotchmaster/hospital_desk/internal/db"
	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/httpserver"
	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/hospital_desk/internal/middleware/logging"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
	"github.com/Skotchmaster/hospital_desk/internal/search"
	"github.com/Skotchmaster/hospital_desk/internal/service"
	"github.com/Skotchmaster/hospital_desk/internal/tokens"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.AdminPassword, "ADMIN_PASSWORD")
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	gdb, err := db.OpenWithRetry(initCtx, cfg.DSN(), db.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, 10, 2*time.Second)
	if err == nil {
		err = db.Migrate(initCtx, gdb)
	}
	cancel()
	if err != nil {
		return err
	}

	pool := db.NewPool(gdb, cfg.DBMaxOpenConns, cfg.DBAcquireTimeout)
	defer pool.Close()
	store := repo.New(pool)

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	index := newSearchIndex(ctx, cfg, store, logger)

	authSvc := &service.AuthService{
		Repo:             store,
		Issuer:           tokens.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Events:           publisher,
		RegistrationCode: cfg.RegistrationCode,
	}
	if created, err := authSvc.SeedAdmin(ctx, cfg.AdminPassword); err != nil {
		return err
	} else if created {
		logger.Info("admin_seeded", "username", service.AdminUsername)
	}

	backupSvc := service.NewBackupService(store, &backup.Runner{
		Script:  cfg.BackupScript,
		Env:     cfg.BackupEnv(),
		LogsDir: cfg.LogsDir,
		Timeout: cfg.BackupTimeout,
		Logger:  logger.With("component", "backup"),
	}, service.BackupOptions{
		Uploader:  newUploader(ctx, cfg, logger),
		Events:    publisher,
		Logger:    logger,
		BackupDir: cfg.BackupDir,
		LogsDir:   cfg.LogsDir,
	})
	if n, err := backupSvc.RecoverJobs(ctx); err != nil {
		logger.Warn("backup_recovery_failed", "error", err)
	} else if n > 0 {
		logger.Warn("backup_jobs_abandoned", "count", n)
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		logger.Warn("backup_dir_unavailable", "dir", cfg.BackupDir, "error", err)
	}

	go purgeRevokedTokens(ctx, authSvc, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:    &httpserver.AuthHTTP{Svc: authSvc},
		PatientHandler: &httpserver.PatientsHTTP{Svc: &service.PatientService{Repo: store, Search: index, Events: publisher}},
		BackupHandler:  &httpserver.BackupHTTP{Svc: backupSvc},
		Gate:           auth.NewGate(cfg.JWTSecret, authSvc),
		Ready:          pool.Ping,
		AuthRateLimit:  cfg.AuthRateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		// synchronous backups hold the connection until the dump finishes
		WriteTimeout: cfg.BackupTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_started")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
	if err := backupSvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("backup_jobs_still_running", "error", err)
	}
	return nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return &events.LogPublisher{Logger: logger}
	}
	p, err := events.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic)
	if err != nil {
		logger.Warn("kafka_unavailable", "error", err)
		return &events.LogPublisher{Logger: logger}
	}
	return p
}

func newSearchIndex(ctx context.Context, cfg *config.Config, store *repo.GormRepo, logger *slog.Logger) search.Index {
	if cfg.ESURL == "" {
		return &search.DBIndex{Repo: store}
	}
	idx, err := search.NewElastic(ctx, search.ESConfig{
		URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword, Index: cfg.ESIndex,
	}, store)
	if err == nil {
		err = idx.EnsureIndex(ctx)
	}
	if err != nil {
		logger.Warn("elasticsearch_unavailable", "error", err)
		return &search.DBIndex{Repo: store}
	}
	// records written while the index was unreachable or not configured
	go func() {
		n, err := idx.Reindex(ctx)
		if err != nil {
			logger.Warn("search_reindex_failed", "indexed", n, "error", err)
			return
		}
		logger.Info("search_reindexed", "count", n)
	}()
	return idx
}

// newUploader returns nil when no bucket is configured.
func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) service.Uploader {
	if cfg.S3Bucket == "" {
		return nil
	}
	u, err := backup.NewS3Uploader(ctx, backup.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Prefix:    cfg.S3Prefix,
	})
	if err != nil {
		logger.Warn("s3_unavailable", "error", err)
		return nil
	}
	return u
}

func purgeRevokedTokens(ctx context.Context, svc *service.AuthService, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := svc.PurgeRevoked(ctx); err != nil {
				logger.Warn("revocation_purge_failed", "error", err)
			} else if n > 0 {
				logger.Info("revocation_purged", "count", n)
			}
		}
	}
}
