package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shopfloor/internal/config"
	"shopfloor/internal/metrics"
	"shopfloor/internal/services"
	"shopfloor/internal/store"
	"shopfloor/internal/transition"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	store  *store.Store
	logger *slog.Logger
	rdb    *redis.Client
}

// deps are the collaborators handlers read from fiber locals.
type deps struct {
	cfg         *config.Config
	st          *store.Store
	transitions services.TransitionService
	scan        services.ScanService
	loc         *time.Location
	now         func() time.Time
	rdb         *redis.Client
	logger      *slog.Logger
}

func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) *Server {
	// Redis backs the per-transaction lock and rate limiting; both are
	// skipped when no URL is configured.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		} else if logger != nil {
			logger.Warn("invalid redis url, running without redis", "error", err)
		}
	}

	var locker services.Locker = services.NoopLocker{}
	if rdb != nil {
		locker = services.NewRedisLocker(rdb, cfg.LockTTL())
	}

	loc := cfg.Location()
	d := deps{
		cfg: cfg,
		st:  st,
		transitions: services.NewTransitionService(st, services.TransitionOptions{
			Workflow: transition.Workflow{
				QCRequired:     cfg.Workflow.QCRequired,
				VerifyRequired: cfg.Workflow.VerifyRequired,
			},
			Location: loc,
			Locker:   locker,
			Logger:   logger,
		}),
		scan:   services.NewScanService(st),
		loc:    loc,
		now:    time.Now,
		rdb:    rdb,
		logger: logger,
	}

	return &Server{
		app:    newApp(d),
		config: cfg,
		store:  st,
		logger: logger,
		rdb:    rdb,
	}
}

func newApp(d deps) *fiber.App {
	app := fiber.New()

	// Inject config, store and services into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", d.cfg)
		c.Locals("store", d.st)
		c.Locals("transitions", d.transitions)
		c.Locals("scan", d.scan)
		c.Locals("location", d.loc)
		c.Locals("clock", d.now)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		if d.logger != nil {
			c.Locals("logger", d.logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if d.logger != nil {
			attrs := []any{
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			}
			if p, ok := principalFrom(c); ok {
				attrs = append(attrs, "employee", p.Employee)
			}
			d.logger.Info("request", attrs...)
		}

		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := d.st.Ping(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if d.rdb != nil {
			if err := d.rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	rateMw := func(c *fiber.Ctx) error { return c.Next() }
	if d.rdb != nil {
		rateMw = rateLimitMiddleware(d.cfg, d.rdb)
	}

	api := app.Group("/api", identityMiddleware(d.st), rateMw)
	registerAPIRoutes(api)

	return app
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and closes the Redis client.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	return err
}

func registerAPIRoutes(group fiber.Router) {
	group.Get("/transactions", transactionsListHandler)
	group.Post("/transactions", requireRole(RoleSupervisor), transactionReleaseHandler)
	group.Get("/transactions/:transNum", transactionGetHandler)
	group.Get("/transactions/:transNum/log", transactionLogHandler)
	group.Get("/pools/:pool", poolGetHandler)

	group.Post("/StartJob", startJobHandler)
	group.Post("/PauseJob", pauseJobHandler)
	group.Post("/CompleteJob", completeJobHandler)
	group.Post("/QCJob", requireRole(RoleQC, RoleSupervisor), qcJobHandler)
	group.Post("/VerifyJob", requireRole(RoleVerifier, RoleSupervisor), verifyJobHandler)
	group.Post("/ScrapJob", scrapJobHandler)
	group.Post("/StartPool", startPoolHandler)
	group.Post("/PausePool", pausePoolHandler)
	group.Post("/CompletePool", completePoolHandler)

	group.Get("/assignments", assignmentsGetHandler)
	group.Post("/assignments", requireRole(RoleAdmin), assignmentAddHandler)
	group.Post("/scan/check", scanCheckHandler)

	group.Get("/employees", employeesListHandler)
	group.Post("/employees", requireRole(RoleAdmin), employeeUpsertHandler)
	group.Get("/machines", machinesListHandler)
	group.Post("/machines", requireRole(RoleAdmin), machineUpsertHandler)
}
