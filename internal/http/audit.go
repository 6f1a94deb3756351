package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"shopfloor/internal/store"
)

// recordAuditEvent stores one audit row for a state-changing request.
// Failures are logged and never fail the request.
func recordAuditEvent(c *fiber.Ctx, st *store.Store, action string, transNum int64, metadata any) {
	if st == nil || st.DB == nil {
		return
	}
	p, _ := principalFrom(c)

	err := st.RecordAuditEvent(c.Context(), store.AuditEvent{
		Action:    action,
		Actor:     p.Employee,
		TransNum:  transNum,
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
		Metadata:  metadata,
	})
	if err != nil {
		if logger, ok := c.Locals("logger").(*slog.Logger); ok {
			logger.Warn("audit event not recorded", "action", action, "trans_num", transNum, "error", err)
		}
	}
}
