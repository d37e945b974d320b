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

	"github.com/essentia-erp/essentia-erp/internal/app"
	"github.com/essentia-erp/essentia-erp/internal/audit"
	"github.com/essentia-erp/essentia-erp/internal/auth"
	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/fragrances"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/materials"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/products"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/suppliers"
	"github.com/essentia-erp/essentia-erp/internal/platform/cache"
	"github.com/essentia-erp/essentia-erp/internal/platform/db"
	"github.com/essentia-erp/essentia-erp/internal/production"
	"github.com/essentia-erp/essentia-erp/internal/purchasing"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
	"github.com/essentia-erp/essentia-erp/internal/users"
	"github.com/essentia-erp/essentia-erp/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "essentia_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	rbacService := rbac.NewService(rbac.NewRepository(pool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	suppliersHandler := suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool)), rbacMiddleware)
	materialsHandler := materials.NewHandler(logger, materials.NewService(materials.NewRepository(pool)), rbacMiddleware)
	fragrancesHandler := fragrances.NewHandler(logger, fragrances.NewService(fragrances.NewRepository(pool)), rbacMiddleware)
	productsHandler := products.NewHandler(logger, products.NewService(products.NewRepository(pool)), rbacMiddleware)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, inventory.DefaultPolicy())
	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware)

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), inventoryService, auditLogger, idempotencyStore)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService, rbacMiddleware)

	productionService := production.NewService(production.NewRepository(pool), inventoryService, auditLogger)
	productionHandler := production.NewHandler(logger, productionService, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(pool), auditLogger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		SuppliersHandler:  suppliersHandler,
		MaterialsHandler:  materialsHandler,
		FragrancesHandler: fragrancesHandler,
		ProductsHandler:   productsHandler,
		InventoryHandler:  inventoryHandler,
		PurchasingHandler: purchasingHandler,
		ProductionHandler: productionHandler,
		UsersHandler:      usersHandler,
		RBACHandler:       rbacHandler,
		AuditHandler:      auditHandler,
		JobsHandler:       jobsHandler,
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
