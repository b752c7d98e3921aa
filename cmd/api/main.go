package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "go-approvals/internal/common/api"
	"go-approvals/internal/common/apperrors"
	"go-approvals/internal/config"
	"go-approvals/internal/database"
	"go-approvals/internal/features/archive"
	"go-approvals/internal/features/audit"
	"go-approvals/internal/features/automation"
	"go-approvals/internal/features/dashboard"
	"go-approvals/internal/features/notification"
	"go-approvals/internal/features/reminder"
	"go-approvals/internal/features/report"
	"go-approvals/internal/features/request"
	"go-approvals/internal/features/system"
	"go-approvals/internal/logger"
	"go-approvals/internal/middleware"
	"go-approvals/pkg/utils"

	_ "go-approvals/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// errorHandler maps the error taxonomy onto HTTP status codes in one place,
// so handlers can return service errors as-is.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		code = fiber.StatusBadRequest
	case apperrors.KindPermission:
		code = fiber.StatusForbidden
	case apperrors.KindConflict:
		code = fiber.StatusConflict
	case apperrors.KindNotFound:
		code = fiber.StatusNotFound
	case apperrors.KindPersistence:
		code = fiber.StatusServiceUnavailable
	default:
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// AsEventSink tags an adapter so the constructor lands in the "event_sinks"
// group consumed by the workflow service.
func AsEventSink(f any) any {
	return fx.Annotate(
		f,
		fx.ResultTags(`group:"event_sinks"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for _, route := range routes {
		route.Setup(app)
	}
	log.Println("All routes registered successfully")
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(lc fx.Lifecycle, requestRepo request.Repository) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := requestRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure request indexes: %v", err)
				}
			}()
			return nil
		},
	})
}

// StartScheduler runs the reminder and archive jobs for the process lifetime.
func StartScheduler(lc fx.Lifecycle, scheduler *reminder.Scheduler, archiver *archive.Archiver) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Stop()
			return archiver.Close()
		},
	})
}

// @title           Approval Workflow API
// @version         1.0
// @description     Approval request lifecycle, signed decisions, audit trail and reporting.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			request.NewRepository,
			audit.NewRepository,
			notification.NewRepository,
			automation.NewRepository,
			dashboard.NewRepository,

			// Initialize Service
			audit.NewService,
			notification.NewService,
			notification.NewDispatcher,
			automation.NewService,
			dashboard.NewService,
			report.NewService,
			archive.NewArchiver,
			reminder.NewScheduler,
			system.NewActivityHub,
			fx.Annotate(
				request.NewService,
				fx.ParamTags(``, ``, ``, `group:"event_sinks"`, ``),
			),

			// Interface Adapters to break circular dependencies and satisfy Fx
			func(d *notification.Dispatcher) request.Dispatcher { return d },
			AsEventSink(func(h *system.ActivityHub) request.EventSink { return h }),
			AsEventSink(func(s automation.Service) request.EventSink { return s }),

			// Initialize Controller
			request.NewController,
			audit.NewController,
			notification.NewController,
			automation.NewController,
			dashboard.NewController,
			report.NewController,

			// Initialize API Routes
			AsRoute(request.NewApi),
			AsRoute(audit.NewApi),
			AsRoute(notification.NewApi),
			AsRoute(automation.NewApi),
			AsRoute(dashboard.NewApi),
			AsRoute(report.NewApi),
			AsRoute(system.NewWebSocketApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },

			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			InitializeIndexes,
		),
	)

	app.Run()
}
