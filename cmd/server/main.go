package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/admitgrid/reconcile/internal/audit"
	"github.com/admitgrid/reconcile/internal/auth"
	"github.com/admitgrid/reconcile/internal/config"
	"github.com/admitgrid/reconcile/internal/db"
	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/export"
	"github.com/admitgrid/reconcile/internal/ingestion"
	"github.com/admitgrid/reconcile/internal/matching"
	"github.com/admitgrid/reconcile/internal/middleware"
	"github.com/admitgrid/reconcile/internal/normalize"
	"github.com/admitgrid/reconcile/internal/repository"
	"github.com/admitgrid/reconcile/internal/review"
	"github.com/admitgrid/reconcile/pkg/logging"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		fallback := logging.Setup("info")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Setup(cfg.LogLevel)

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Repositories
	registry := repository.NewMasterEntityRepository(conn.Pool)
	records := repository.NewRawRecordRepository(conn.Pool)
	decisions := repository.NewMatchDecisionRepository(conn)
	auditRepo := repository.NewAuditLogRepository(conn.Pool)

	// Domain services
	expander := normalize.NewExpander(nil)
	classifier := normalize.ChainClassifier{
		normalize.NewStateGazetteer(normalize.StateNames()),
		normalize.NewKeywordClassifier(),
		normalize.NewLengthClassifier(),
	}

	engines := make(map[domain.EntityKind]*matching.Engine)
	for _, kind := range []domain.EntityKind{
		domain.EntityKindCollege,
		domain.EntityKindCourse,
		domain.EntityKindState,
		domain.EntityKindCategory,
	} {
		engines[kind] = matching.NewEngine(kind, registry, decisions, expander, cfg.Matching, logger)
	}

	ledger := audit.NewLedger(auditRepo, logger)
	ingestSvc := ingestion.NewService(records, classifier, logger)
	reviewSvc := review.NewService(decisions, decisions, records, registry, auditRepo, logger)
	exportSvc := export.NewService(decisions, records, registry, logger)

	// HTTP surface
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	logged := middleware.LoggingMiddleware(logger)
	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(logged(auth.Middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/ingest", wrap(ingestion.NewHTTPHandler(ingestSvc)))
	mux.Handle("/api/match/run", wrap(matching.NewHTTPHandler(engines, records)))
	mux.Handle("/api/review", wrap(review.NewHTTPHandler(reviewSvc)))
	mux.Handle("/api/review/bulk", wrap(review.NewHTTPHandler(reviewSvc)))
	mux.Handle("/api/audit", wrap(audit.NewHTTPHandler(ledger)))
	mux.Handle("/api/audit/stats", wrap(audit.NewHTTPHandler(ledger)))
	mux.Handle("/api/export", wrap(export.NewHTTPHandler(exportSvc)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go runRetention(ctx, ledger, cfg.Audit, logger)

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting reconciliation server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server exited")
}

// runRetention prunes the audit ledger once at startup and then on the
// configured interval.
func runRetention(ctx context.Context, ledger *audit.Ledger, cfg config.AuditConfig, logger zerolog.Logger) {
	if cfg.RetentionKeep <= 0 || cfg.RetentionInterval <= 0 {
		return
	}

	prune := func() {
		pruned, err := ledger.ApplyRetention(ctx, cfg.RetentionKeep)
		if err != nil {
			logger.Error().Err(err).Msg("audit retention prune failed")
			return
		}
		if pruned > 0 {
			logger.Info().Int64("pruned", pruned).Msg("audit retention prune finished")
		}
	}

	prune()
	ticker := time.NewTicker(cfg.RetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
