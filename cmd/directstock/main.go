package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/app"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/approval"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/audit"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/auth"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/idempotency"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/issuing"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/jobs"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/masterdata"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/observability"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/picking"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/cache"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/platform/db"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/procurement"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/returns"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/transfers"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, logger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	approvalRepo := approval.NewRepository(pool)
	approvalService := approval.NewService(approvalRepo, logger).WithObserver(metrics)
	approvalHandler := approval.NewHandler(logger, approvalService)

	masterdataRepo := masterdata.NewRepository(pool)
	productCache := masterdata.NewCachedProducts(masterdataRepo, redisClient, cfg.ProductCacheTTL)
	masterdataService := masterdata.NewService(masterdataRepo, productCache, logger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, approvalService, logger, metrics)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	issuingRepo := issuing.NewRepository(pool)
	issuingService := issuing.NewService(issuingRepo, masterdataService, logger, metrics)
	issuingHandler := issuing.NewHandler(logger, issuingService)

	transfersRepo := transfers.NewRepository(pool)
	transfersService := transfers.NewService(transfersRepo, logger, metrics)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, logger, metrics)
	returnsHandler := returns.NewHandler(logger, returnsService)

	pickingRepo := picking.NewRepository(pool)
	pickingService := picking.NewService(pickingRepo, logger, metrics)
	pickingHandler := picking.NewHandler(logger, pickingService)

	operationStore := idempotency.NewCachedStore(idempotency.NewPgStore(pool), redisClient, cfg.OperationCacheTTL)
	idempotencyMW := idempotency.NewMiddleware(operationStore, logger).WithObserver(metrics)

	auditRecorder := audit.NewRecorder(pool)
	auditMW := audit.NewMiddleware(auditRecorder, audit.NewPgSnapshotSource(pool), logger)
	auditHandler := audit.NewHandler(logger, auditRecorder)

	authMW := auth.NewMiddleware([]byte(cfg.JWTSecret), logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		Metrics:            metrics,
		Auth:               authMW,
		Idempotency:        idempotencyMW,
		Audit:              auditMW,
		LedgerHandler:      ledgerHandler,
		ProcurementHandler: procurementHandler,
		IssuingHandler:     issuingHandler,
		TransfersHandler:   transfersHandler,
		ReturnsHandler:     returnsHandler,
		PickingHandler:     pickingHandler,
		ApprovalHandler:    approvalHandler,
		AuditHandler:       auditHandler,
		MasterDataHandler:  masterdataHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
