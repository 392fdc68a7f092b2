package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinrec/clinrec/internal/config"
	"github.com/clinrec/clinrec/internal/domain/account"
	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/domain/condition"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/domain/diagnosticreport"
	"github.com/clinrec/clinrec/internal/domain/encounter"
	"github.com/clinrec/clinrec/internal/domain/observation"
	"github.com/clinrec/clinrec/internal/domain/organization"
	"github.com/clinrec/clinrec/internal/domain/patient"
	"github.com/clinrec/clinrec/internal/domain/practitioner"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/metrics"
	"github.com/clinrec/clinrec/internal/platform/middleware"
	"github.com/clinrec/clinrec/internal/platform/respond"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinrec-server",
		Short: "Clinical records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the records API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	signingKey := cfg.AuthSigningKey
	if signingKey == "" {
		// Dev only: Validate rejects a missing key outside development.
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate dev signing key")
		}
		signingKey = hex.EncodeToString(raw)
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; using an ephemeral key, tokens will not survive restarts")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token revocation: shared via redis when configured, in-process otherwise.
	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("token revocation backed by redis")
	} else {
		revocations = auth.NewMemoryRevocationStore()
		logger.Warn().Msg("REDIS_URL not set; token revocation is in-process only")
	}

	m := metrics.New()
	minter := auth.NewMinter([]byte(signingKey), cfg.TokenTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = respond.ErrorHandler()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(m.Middleware())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Services
	auditSvc := auditevent.NewService(auditevent.NewRepo(pool), logger, m.AuditWriteErrors)

	consentRepo := consent.NewRepo(pool)
	gate := consent.NewGate(consentRepo, m.ConsentDenials)
	consentSvc := consent.NewService(consentRepo, auditSvc)

	txRunner := func(ctx context.Context, fn func(context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	patientSvc := patient.NewService(patient.NewRepo(pool), auditSvc, txRunner, gate, m.MergesPerformed)
	practitionerSvc := practitioner.NewService(practitioner.NewRepo(pool), auditSvc)
	organizationSvc := organization.NewService(organization.NewRepo(pool), auditSvc)
	encounterSvc := encounter.NewService(encounter.NewRepo(pool), practitionerSvc, gate, auditSvc)
	conditionSvc := condition.NewService(condition.NewRepo(pool), encounterSvc, gate, auditSvc)
	observationSvc := observation.NewService(observation.NewRepo(pool), encounterSvc, gate, auditSvc)
	reportSvc := diagnosticreport.NewService(diagnosticreport.NewRepo(pool), encounterSvc, gate, auditSvc)
	accountSvc := account.NewService(account.NewRepo(pool), minter, revocations, auditSvc, m.TokensIssued, m.TokensRevoked)

	// Public routes: rate-limited but unauthenticated.
	public := e.Group("/api/v1")
	public.Use(middleware.RateLimit(rateLimitCfg))
	accountHandler := account.NewHandler(accountSvc)
	accountHandler.RegisterPublicRoutes(public)

	// Everything else sits behind bearer-token auth.
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(auth.Middleware(minter, revocations))

	accountHandler.RegisterRoutes(api)
	patient.NewHandler(patientSvc, gate, logger, cfg.Env).RegisterRoutes(api)
	practitioner.NewHandler(practitionerSvc, logger, cfg.Env).RegisterRoutes(api)
	organization.NewHandler(organizationSvc, logger, cfg.Env).RegisterRoutes(api)
	encounter.NewHandler(encounterSvc, gate, logger, cfg.Env).RegisterRoutes(api)
	condition.NewHandler(conditionSvc, gate, logger, cfg.Env).RegisterRoutes(api)
	observation.NewHandler(observationSvc, gate, logger, cfg.Env).RegisterRoutes(api)
	diagnosticreport.NewHandler(reportSvc, gate, logger, cfg.Env).RegisterRoutes(api)
	consent.NewHandler(consentSvc, logger, cfg.Env).RegisterRoutes(api)
	auditevent.NewHandler(auditSvc, logger, cfg.Env).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
