package http

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"shopfloor/internal/model"
	"shopfloor/internal/services"
	"shopfloor/internal/store"
)

// Handler dependencies are injected into fiber locals by NewServer.

func storeFrom(c *fiber.Ctx) *store.Store {
	st, _ := c.Locals("store").(*store.Store)
	return st
}

func locationFrom(c *fiber.Ctx) *time.Location {
	if loc, ok := c.Locals("location").(*time.Location); ok && loc != nil {
		return loc
	}
	return time.Local
}

func nowFrom(c *fiber.Ctx) time.Time {
	if now, ok := c.Locals("clock").(func() time.Time); ok && now != nil {
		return now().In(locationFrom(c))
	}
	return time.Now().In(locationFrom(c))
}

func transitionsFrom(c *fiber.Ctx) services.TransitionService {
	svc, _ := c.Locals("transitions").(services.TransitionService)
	return svc
}

func scanFrom(c *fiber.Ctx) services.ScanService {
	svc, _ := c.Locals("scan").(services.ScanService)
	return svc
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(model.ActionResponse{
		Success: false,
		Code:    "BAD_REQUEST",
		Message: msg,
	})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(model.ActionResponse{
		Success: false,
		Code:    "NOT_FOUND",
		Message: msg,
	})
}

func internalError(c *fiber.Ctx, code string, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(model.ActionResponse{
		Success: false,
		Code:    code,
		Message: err.Error(),
	})
}

// writeServiceError maps service errors onto the action envelope:
// invalid 400, unknown 404, business-rule rejection 409, anything else
// 500. Rejection reasons are passed through verbatim.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalid):
		return badRequest(c, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, services.ErrRejected):
		return c.Status(fiber.StatusConflict).JSON(model.ActionResponse{
			Success: false,
			Code:    "REJECTED",
			Message: err.Error(),
		})
	}
	return internalError(c, "INTERNAL_ERROR", err)
}
