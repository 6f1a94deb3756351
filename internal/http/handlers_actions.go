package http

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"shopfloor/internal/model"
	"shopfloor/internal/services"
)

// actingEmployee resolves the employee a request acts for. The body
// names the employee; when it is empty the identified principal is used.
// Operators may only act for themselves.
func actingEmployee(c *fiber.Ctx, requested string) (string, bool, error) {
	requested = strings.TrimSpace(requested)
	p, ok := principalFrom(c)
	if !ok {
		return requested, true, nil
	}
	if requested == "" {
		return p.Employee, true, nil
	}
	if p.SelfService() && !strings.EqualFold(requested, p.Employee) {
		return "", false, c.Status(fiber.StatusForbidden).JSON(model.ActionResponse{
			Success: false,
			Code:    "FORBIDDEN",
			Message: fmt.Sprintf("Operator %s may not act for employee %s", p.Employee, requested),
		})
	}
	return requested, true, nil
}

func actionSuccess(c *fiber.Ctx, out *services.Outcome) error {
	return c.JSON(model.ActionResponse{Success: true, Message: out.Message})
}

// actionHandler adapts a single-transaction service call. body must
// return the embedded ActionRequest so the acting employee can be
// resolved uniformly.
func actionHandler[T any](action string, body func(*T) *model.ActionRequest, call func(services.TransitionService, context.Context, T) (*services.Outcome, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req T
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		base := body(&req)
		emp, ok, err := actingEmployee(c, base.Employee)
		if !ok {
			return err
		}
		base.Employee = emp

		out, err := call(transitionsFrom(c), c.Context(), req)
		if err != nil {
			return writeServiceError(c, err)
		}
		recordAuditEvent(c, storeFrom(c), action, out.TransNum, req)
		return actionSuccess(c, out)
	}
}

func plainBody(r *model.ActionRequest) *model.ActionRequest { return r }
func qcBody(r *model.QCRequest) *model.ActionRequest       { return &r.ActionRequest }
func scrapBody(r *model.ScrapRequest) *model.ActionRequest { return &r.ActionRequest }

var (
	startJobHandler = actionHandler("transaction.start", plainBody,
		func(s services.TransitionService, ctx context.Context, r model.ActionRequest) (*services.Outcome, error) {
			return s.Start(ctx, r)
		})
	pauseJobHandler = actionHandler("transaction.pause", plainBody,
		func(s services.TransitionService, ctx context.Context, r model.ActionRequest) (*services.Outcome, error) {
			return s.Pause(ctx, r)
		})
	completeJobHandler = actionHandler("transaction.complete", plainBody,
		func(s services.TransitionService, ctx context.Context, r model.ActionRequest) (*services.Outcome, error) {
			return s.Complete(ctx, r)
		})
	verifyJobHandler = actionHandler("transaction.verify", plainBody,
		func(s services.TransitionService, ctx context.Context, r model.ActionRequest) (*services.Outcome, error) {
			return s.Verify(ctx, r)
		})
	qcJobHandler = actionHandler("transaction.qc", qcBody,
		func(s services.TransitionService, ctx context.Context, r model.QCRequest) (*services.Outcome, error) {
			return s.QC(ctx, r)
		})
	scrapJobHandler = actionHandler("transaction.scrap", scrapBody,
		func(s services.TransitionService, ctx context.Context, r model.ScrapRequest) (*services.Outcome, error) {
			return s.Scrap(ctx, r)
		})
)

func poolHandler(action string, call func(services.TransitionService, context.Context, model.PoolActionRequest) (*services.PoolOutcome, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.PoolActionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		emp, ok, err := actingEmployee(c, req.Employee)
		if !ok {
			return err
		}
		req.Employee = emp

		out, err := call(transitionsFrom(c), c.Context(), req)
		if err != nil {
			return writeServiceError(c, err)
		}
		for _, a := range out.Applied {
			recordAuditEvent(c, storeFrom(c), action, a.TransNum, req)
		}
		return c.JSON(poolActionResponse(out))
	}
}

var (
	startPoolHandler = poolHandler("pool.start",
		func(s services.TransitionService, ctx context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
			return s.StartPool(ctx, r)
		})
	pausePoolHandler = poolHandler("pool.pause",
		func(s services.TransitionService, ctx context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
			return s.PausePool(ctx, r)
		})
	completePoolHandler = poolHandler("pool.complete",
		func(s services.TransitionService, ctx context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
			return s.CompletePool(ctx, r)
		})
)
