// Package transition contains the pure business rules for status changes.
// Guards are pure functions that evaluate preconditions without side effects.
package transition

import (
	"fmt"
	"strings"

	"shopfloor/internal/jobs"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

func deny(format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

var allow = GuardResult{Allowed: true}

// StatusContext is the current state of a transaction.
type StatusContext struct {
	TransNum int64
	Stage    jobs.Stage
	Status   jobs.Status
}

// StartContext provides context for start guards.
type StartContext struct {
	StatusContext

	// PreviousOperation is 0 when this is the first operation of the job.
	PreviousOperation         int
	PreviousOperationComplete bool

	Machine          string
	AllowedMachines  []string
	Employee         string
	EmployeeActive   bool
	AllowedEmployees []string
}

// CanStart evaluates whether work may start (or resume) on a transaction.
// Rules:
// - Transaction must not be closed
// - Transaction must not already be started
// - In production, the previous operation must be complete
// - Machine and employee must be assigned when assignments exist
func CanStart(ctx StartContext) GuardResult {
	if !ctx.Stage.Open() {
		return deny("transaction %d is closed", ctx.TransNum)
	}
	if ctx.Status == jobs.StatusStarted {
		return deny("job already started")
	}
	if ctx.Status == jobs.StatusCompleted {
		return deny("%s stage of transaction %d is already complete", ctx.Stage, ctx.TransNum)
	}
	if ctx.Stage == jobs.StageProduction && ctx.PreviousOperation > 0 && !ctx.PreviousOperationComplete {
		return deny("previous operation %d not complete", ctx.PreviousOperation)
	}
	if strings.TrimSpace(ctx.Employee) == "" {
		return deny("employee is required")
	}
	if !ctx.EmployeeActive {
		return deny("employee %s is not active", ctx.Employee)
	}
	if !member(ctx.AllowedMachines, ctx.Machine) {
		return deny("machine %s is not assigned to this operation", ctx.Machine)
	}
	if !member(ctx.AllowedEmployees, ctx.Employee) {
		return deny("employee %s is not assigned to this operation", ctx.Employee)
	}
	return allow
}

// CanPause evaluates whether a running transaction may be paused.
func CanPause(ctx StatusContext) GuardResult {
	if !ctx.Stage.Open() {
		return deny("transaction %d is closed", ctx.TransNum)
	}
	if ctx.Status != jobs.StatusStarted {
		return deny("job is not running")
	}
	return allow
}

// CanComplete evaluates whether a stage may be completed. Work must have
// been started at least once in the stage.
func CanComplete(ctx StatusContext) GuardResult {
	if !ctx.Stage.Open() {
		return deny("transaction %d is closed", ctx.TransNum)
	}
	if ctx.Status != jobs.StatusStarted && ctx.Status != jobs.StatusPaused {
		return deny("job has not been started")
	}
	return allow
}

// CanQC evaluates whether a QC outcome may be recorded.
func CanQC(ctx StatusContext) GuardResult {
	if ctx.Stage != jobs.StageQC {
		return deny("transaction %d is not awaiting QC", ctx.TransNum)
	}
	if ctx.Status == jobs.StatusStarted {
		return deny("pause or complete the QC inspection before recording a result")
	}
	return allow
}

// CanVerify evaluates whether a transaction may be verified.
func CanVerify(ctx StatusContext) GuardResult {
	if ctx.Stage != jobs.StageVerify {
		return deny("transaction %d is not awaiting verification", ctx.TransNum)
	}
	return allow
}

// ScrapContext provides context for scrap guards.
type ScrapContext struct {
	StatusContext
	Qty         int
	QtyReleased int
	QtyScrapped int
}

// CanScrap evaluates whether qty pieces may be scrapped.
func CanScrap(ctx ScrapContext) GuardResult {
	if !ctx.Stage.Open() {
		return deny("transaction %d is closed", ctx.TransNum)
	}
	if ctx.Qty <= 0 {
		return deny("scrap quantity must be positive")
	}
	remaining := ctx.QtyReleased - ctx.QtyScrapped
	if ctx.Qty > remaining {
		return deny("scrap quantity %d exceeds remaining quantity %d", ctx.Qty, remaining)
	}
	return allow
}

func member(set []string, code string) bool {
	if len(set) == 0 {
		return true
	}
	for _, c := range set {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}
