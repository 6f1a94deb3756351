package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"shopfloor/internal/config"
	"shopfloor/internal/model"
	"shopfloor/internal/store"
)

// EmployeeHeader carries the acting employee code.
const EmployeeHeader = "X-Employee"

// identityMiddleware resolves the X-Employee header against the employee
// master and attaches the Principal as "principal". Requests without the
// header proceed anonymously; handlers that need an actor check for it.
func identityMiddleware(st *store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := strings.TrimSpace(c.Get(EmployeeHeader))
		if code == "" {
			return c.Next()
		}

		emp, err := st.GetEmployee(c.Context(), code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(model.ActionResponse{
					Success: false,
					Code:    "UNKNOWN_EMPLOYEE",
					Message: fmt.Sprintf("Unknown employee %s", code),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(model.ActionResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Message: fmt.Sprintf("employee lookup failed: %v", err),
			})
		}
		if !emp.Active {
			return c.Status(fiber.StatusForbidden).JSON(model.ActionResponse{
				Success: false,
				Code:    "FORBIDDEN",
				Message: fmt.Sprintf("Employee %s is not active", code),
			})
		}

		c.Locals("principal", principalFromEmployee(emp))
		return c.Next()
	}
}

func principalFrom(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals("principal").(Principal)
	return p, ok
}

// requirePrincipal rejects anonymous requests.
func requirePrincipal(c *fiber.Ctx) error {
	if _, ok := principalFrom(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(model.ActionResponse{
			Success: false,
			Code:    "UNIDENTIFIED",
			Message: "X-Employee header is required",
		})
	}
	return c.Next()
}

// requireRole ensures the principal holds one of roles.
func requireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principalFrom(c)
		if !ok {
			return requirePrincipal(c)
		}
		if !p.HasRole(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(model.ActionResponse{
				Success: false,
				Code:    "FORBIDDEN",
				Message: fmt.Sprintf("Role %s may not perform this action", p.Role),
			})
		}
		return c.Next()
	}
}

// rateLimitMiddleware enforces a simple per-minute fixed-window rate limit
// per employee (or client IP for anonymous requests) using Redis.
func rateLimitMiddleware(cfg *config.Config, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := cfg.RateLimit.DefaultPerMinute
		if limit <= 0 {
			return c.Next()
		}

		subject := "ip:" + c.IP()
		if p, ok := principalFrom(c); ok {
			subject = "emp:" + p.Employee
		}

		now := time.Now().UTC()
		window := now.Format("200601021504") // YYYYMMDDHHMM minute window
		key := fmt.Sprintf("shopfloor:rl:%s:%s", subject, window)

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(model.ActionResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Message: fmt.Sprintf("rate limit increment failed: %v", err),
			})
		}
		if count == 1 {
			// First hit in this window; set TTL
			_ = rdb.Expire(ctx, key, time.Minute)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(model.ActionResponse{
				Success: false,
				Code:    "RATE_LIMIT_EXCEEDED",
				Message: "Rate limit exceeded, try again later",
			})
		}

		return c.Next()
	}
}
