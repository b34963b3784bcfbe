package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mouldworks/mouldworks/cmd/mouldworks/cli"
	"github.com/mouldworks/mouldworks/internal/analytics"
	"github.com/mouldworks/mouldworks/internal/app"
	"github.com/mouldworks/mouldworks/internal/audit"
	audithttp "github.com/mouldworks/mouldworks/internal/audit/http"
	"github.com/mouldworks/mouldworks/internal/auth"
	"github.com/mouldworks/mouldworks/internal/costing"
	"github.com/mouldworks/mouldworks/internal/dataio"
	"github.com/mouldworks/mouldworks/internal/delivery"
	"github.com/mouldworks/mouldworks/internal/inventory"
	"github.com/mouldworks/mouldworks/internal/masterdata"
	"github.com/mouldworks/mouldworks/internal/observability"
	"github.com/mouldworks/mouldworks/internal/oee"
	"github.com/mouldworks/mouldworks/internal/platform/cache"
	"github.com/mouldworks/mouldworks/internal/platform/db"
	"github.com/mouldworks/mouldworks/internal/production"
	"github.com/mouldworks/mouldworks/internal/quality"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/roles"
	"github.com/mouldworks/mouldworks/internal/sales"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/internal/users"
	"github.com/mouldworks/mouldworks/internal/view"
	"github.com/mouldworks/mouldworks/jobs"
	"github.com/mouldworks/mouldworks/report"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "mouldworks_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	company := report.Company{
		Name:    cfg.CompanyName,
		Address: cfg.CompanyAddress,
		Phone:   cfg.CompanyPhone,
		Email:   cfg.CompanyEmail,
		VATNo:   cfg.CompanyVATNo,
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	analyticsCache := analytics.NewCache(redisClient, 10*time.Minute)
	// Stock, order and production writes invalidate cached reports.
	mutationAudit := analytics.NewInvalidatingAuditLog(auditLogger, analyticsCache)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authService.SetAudit(auditLogger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	userService := users.NewService(users.NewRepository(dbpool), auditLogger)
	userService.SetRolePort(rbacService)
	userHandler := users.NewHandler(logger, userService, templates, csrfManager, sessionManager, rbacMiddleware)

	roleHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool)), templates, csrfManager, sessionManager, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, sessionManager, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, templates, audit.NewExporter(company), rbacService)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), mutationAudit, idempotencyStore)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware, company)

	masterDataHandler := masterdata.NewHandler(logger, dbpool, auditLogger, rbacMiddleware)

	productionService := production.NewService(production.NewRepository(dbpool), mutationAudit, idempotencyStore)
	productionService.SetInventoryService(production.NewInventoryAdapter(inventoryService))
	productionService.SetMachineService(production.NewMachineAdapter(masterDataHandler.Machines))
	productionService.SetMouldService(production.NewMouldAdapter(masterDataHandler.Moulds))
	productionService.SetScheduleLocker(cache.NewLock(redisClient, 5*time.Second))
	productionHandler := production.NewHandler(logger, productionService, rbacMiddleware)

	salesService := sales.NewService(sales.NewRepository(dbpool), mutationAudit)
	salesService.SetCustomerService(sales.NewCustomerAdapter(masterDataHandler.Customers))
	salesService.SetInventoryService(sales.NewInventoryAdapter(inventoryService))
	salesService.SetProductionService(sales.NewProductionAdapter(productionService))
	salesHandler := sales.NewHandler(logger, salesService, rbacMiddleware)

	deliveryService := delivery.NewService(delivery.NewRepository(dbpool), mutationAudit, idempotencyStore)
	deliveryService.SetSalesService(&delivery.SalesAdapter{Sales: salesService})
	deliveryService.SetInventoryService(&delivery.InventoryAdapter{Inventory: inventoryService})
	deliveryHandler := delivery.NewHandler(logger, deliveryService, rbacMiddleware, company, cfg.UploadDir)

	costingService := costing.NewService(costing.NewRepository(dbpool), auditLogger)
	costingService.SetSalesService(&costing.SalesAdapter{Sales: salesService})
	costingService.SetProductionService(&costing.ProductionAdapter{Production: productionService})
	costingHandler := costing.NewHandler(logger, costingService, rbacMiddleware, company)

	oeeService := oee.NewService(oee.NewRepository(dbpool), auditLogger)
	oeeService.SetMachineService(&oee.MachinesAdapter{Machines: masterDataHandler.Machines})
	oeeHandler := oee.NewHandler(logger, oeeService, rbacMiddleware)

	qualityService := quality.NewService(quality.NewRepository(dbpool), auditLogger)
	qualityService.SetApprovals(shared.NewApprovalRecorder(dbpool, logger))
	qualityHandler := quality.NewHandler(logger, qualityService, rbacMiddleware)

	dataioService := dataio.NewService(auditLogger)
	dataioService.RegisterItems(&dataio.ItemsAdapter{Inventory: inventoryService})
	dataioService.RegisterLocations(&dataio.LocationsAdapter{Locations: masterDataHandler.Locations})
	dataioService.RegisterCustomers(&dataio.CustomersAdapter{Customers: masterDataHandler.Customers})
	dataioService.RegisterSuppliers(&dataio.SuppliersAdapter{Suppliers: masterDataHandler.Suppliers})
	dataioService.RegisterMaterials(&dataio.MaterialsAdapter{Materials: masterDataHandler.Materials})
	dataioService.RegisterMachines(&dataio.MachinesAdapter{Machines: masterDataHandler.Machines})
	dataioService.RegisterMoulds(&dataio.MouldsAdapter{Moulds: masterDataHandler.Moulds})
	dataioHandler := dataio.NewHandler(logger, dataioService, rbacMiddleware)

	analyticsService := analytics.NewService(analytics.NewRepository(dbpool), analyticsCache)
	oeeService.SetDashboardCache(analyticsCache)
	analyticsHandler := analytics.NewHandler(logger, analyticsService, rbacMiddleware)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,

		AuthHandler:        authHandler,
		UsersHandler:       userHandler,
		RolesHandler:       roleHandler,
		PermissionsHandler: permissionsHandler,
		AuditHandler:       auditHandler,

		InventoryHandler:  inventoryHandler,
		MasterDataHandler: masterDataHandler,
		ProductionHandler: productionHandler,
		SalesHandler:      salesHandler,
		DeliveryHandler:   deliveryHandler,
		CostingHandler:    costingHandler,
		OEEHandler:        oeeHandler,
		QualityHandler:    qualityHandler,
		DataIOHandler:     dataioHandler,
		AnalyticsHandler:  analyticsHandler,
		JobHandler:        jobHandler,

		Metrics: metrics,
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

// runJobsCommand handles `mouldworks jobs <trigger|inspect|scheduled> [name]`
// without starting the web server.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mouldworks jobs trigger <task> | inspect | scheduled")
		return 2
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobs cli:", err)
		return 1
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mouldworks jobs trigger <task>")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "trigger:", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "inspect:", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintln(os.Stderr, "scheduled:", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown jobs command:", args[0])
		return 2
	}
	return 0
}
