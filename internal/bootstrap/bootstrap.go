package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/config"
	"shopfloor/internal/db"
)

// Seeder is the part of the store bootstrap writes through.
type Seeder interface {
	EnsureEmployee(ctx context.Context, arg db.InsertEmployeeIfMissingParams) (bool, error)
	UpsertMachine(ctx context.Context, arg db.UpsertMachineParams) (db.Machine, error)
}

var validRoles = map[string]bool{
	"operator":   true,
	"supervisor": true,
	"qc":         true,
	"verifier":   true,
	"admin":      true,
}

// Run applies bootstrap configuration for employees and machines. It is
// idempotent: existing employees are never modified, machines are
// upserted.
func Run(ctx context.Context, cfg *config.Config, st Seeder, logger *slog.Logger) error {
	if cfg == nil || st == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, e := range cfg.Bootstrap.Employees {
		code := strings.TrimSpace(e.Code)
		if code == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(e.Role))
		if role == "" {
			role = "operator"
		}
		if !validRoles[role] {
			return errors.Newf("bootstrap employee %s: unknown role %q", code, e.Role)
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = code
		}
		created, err := st.EnsureEmployee(ctx, db.InsertEmployeeIfMissingParams{Code: code, Name: name, Role: role})
		if err != nil {
			return errors.Wrapf(err, "bootstrap employee %s", code)
		}
		if created {
			logger.Info("bootstrap employee created", "code", code, "role", role)
		}
	}

	for _, m := range cfg.Bootstrap.Machines {
		code := strings.TrimSpace(m.Code)
		if code == "" {
			continue
		}
		if _, err := st.UpsertMachine(ctx, db.UpsertMachineParams{
			Code:        code,
			Description: strings.TrimSpace(m.Description),
			WorkCenter:  strings.TrimSpace(m.WorkCenter),
		}); err != nil {
			return errors.Wrapf(err, "bootstrap machine %s", code)
		}
	}

	return nil
}
