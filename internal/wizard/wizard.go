// Package wizard implements the guided scan confirmation that precedes
// starting work on a transaction: job, operation, machine, then employee.
package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/model"
	"shopfloor/internal/scan"
)

// Step is a wizard state.
type Step int

const (
	StepJob Step = iota
	StepOperation
	StepMachine
	StepEmployee
	StepDone
	StepCancelled
)

func (s Step) String() string {
	switch s {
	case StepJob:
		return "job"
	case StepOperation:
		return "operation"
	case StepMachine:
		return "machine"
	case StepEmployee:
		return "employee"
	case StepDone:
		return "done"
	case StepCancelled:
		return "cancelled"
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// ParseStep resolves a step name as used on the wire.
func ParseStep(raw string) (Step, error) {
	for s := StepJob; s <= StepEmployee; s++ {
		if strings.EqualFold(strings.TrimSpace(raw), s.String()) {
			return s, nil
		}
	}
	return 0, errors.Newf("unknown wizard step %q", raw)
}

// Terminal reports whether no further scans are accepted.
func (s Step) Terminal() bool {
	return s == StepDone || s == StepCancelled
}

// ExpectedType is the label type the step accepts.
func (s Step) ExpectedType() scan.Type {
	switch s {
	case StepJob:
		return scan.TypeJob
	case StepOperation:
		return scan.TypeOperation
	case StepMachine:
		return scan.TypeMachine
	case StepEmployee:
		return scan.TypeEmployee
	}
	return ""
}

var (
	ErrTerminal = errors.New("wizard is finished")
	ErrNotDone  = errors.New("wizard has not confirmed all steps")
)

// Expectation is what the scans must match for one transaction.
// Empty Machines or Employees accept any code.
type Expectation struct {
	TransNum   int64
	Job        string
	SerialNo   string
	Operation  int
	WorkCenter string
	Machines   []string
	Employees  []string

	// SelfService is set for operators who may only book work for
	// themselves; the employee step is skipped and Actor is used.
	SelfService bool
	Actor       string
}

// Summary holds the identifiers confirmed so far.
type Summary struct {
	Job       string
	Operation string
	Machine   string
	Employee  string
}

// StepResult is the outcome of one scan.
type StepResult struct {
	Step    Step
	Valid   bool
	Message string
}

// Check validates a payload against the given step without any state.
func Check(exp Expectation, step Step, p scan.Payload) StepResult {
	want := step.ExpectedType()
	if want == "" {
		return StepResult{Step: step, Message: fmt.Sprintf("no scan expected at step %s", step)}
	}
	if p.Type != want {
		return StepResult{Step: step, Message: fmt.Sprintf("Expected a %s label, scanned %s", want, p.Type)}
	}

	switch step {
	case StepJob:
		if !strings.EqualFold(strings.TrimSpace(p.ID), strings.TrimSpace(exp.Job)) {
			return StepResult{Step: step, Message: fmt.Sprintf("Scanned job %s does not match job %s", p.ID, exp.Job)}
		}
	case StepOperation:
		n, err := strconv.Atoi(strings.TrimSpace(p.ID))
		if err != nil || n != exp.Operation {
			return StepResult{Step: step, Message: fmt.Sprintf("Scanned operation %s does not match operation %d", p.ID, exp.Operation)}
		}
	case StepMachine:
		if !allowed(exp.Machines, p.ID) {
			return StepResult{Step: step, Message: fmt.Sprintf("Machine %s is not assigned to this operation", p.ID)}
		}
	case StepEmployee:
		if !allowed(exp.Employees, p.ID) {
			return StepResult{Step: step, Message: fmt.Sprintf("Employee %s is not assigned to this operation", p.ID)}
		}
	}
	return StepResult{Step: step, Valid: true}
}

func allowed(set []string, code string) bool {
	if len(set) == 0 {
		return strings.TrimSpace(code) != ""
	}
	for _, c := range set {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}

// Wizard walks one transaction through the scan steps. It is owned by a
// single caller and is not safe for concurrent use.
type Wizard struct {
	exp     Expectation
	step    Step
	summary Summary
}

func New(exp Expectation) *Wizard {
	return &Wizard{exp: exp, step: StepJob}
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Summary() Summary { return w.summary }

func (w *Wizard) Expectation() Expectation { return w.exp }

// Submit applies a decoded scan to the current step. A mismatch leaves the
// step and summary untouched.
func (w *Wizard) Submit(p scan.Payload) (StepResult, error) {
	if w.step.Terminal() {
		return StepResult{Step: w.step}, ErrTerminal
	}
	res := Check(w.exp, w.step, p)
	if !res.Valid {
		return res, nil
	}

	id := strings.TrimSpace(p.ID)
	switch w.step {
	case StepJob:
		w.summary.Job = id
		w.step = StepOperation
	case StepOperation:
		w.summary.Operation = id
		w.step = StepMachine
	case StepMachine:
		w.summary.Machine = id
		if w.exp.SelfService {
			w.summary.Employee = w.exp.Actor
			w.step = StepDone
		} else {
			w.step = StepEmployee
		}
	case StepEmployee:
		w.summary.Employee = id
		w.step = StepDone
	}
	res.Step = w.step
	return res, nil
}

// SubmitText parses QR text and submits it. Unreadable labels are reported
// as an invalid step, not an error.
func (w *Wizard) SubmitText(text string) (StepResult, error) {
	if w.step.Terminal() {
		return StepResult{Step: w.step}, ErrTerminal
	}
	p, err := scan.Parse(text)
	if err != nil {
		return StepResult{Step: w.step, Message: "Unreadable label: " + err.Error()}, nil
	}
	return w.Submit(p)
}

// Cancel dismisses the wizard from any unfinished step.
func (w *Wizard) Cancel() error {
	if w.step.Terminal() {
		return ErrTerminal
	}
	w.step = StepCancelled
	return nil
}

// Request builds the start request once every step is confirmed. The
// timestamp is the client's local wall-clock time.
func (w *Wizard) Request(now time.Time, loc *time.Location) (model.ActionRequest, error) {
	if w.step != StepDone {
		return model.ActionRequest{}, errors.Wrapf(ErrNotDone, "at step %s", w.step)
	}
	return model.ActionRequest{
		Job:        w.summary.Job,
		SerialNo:   w.exp.SerialNo,
		Operation:  w.exp.Operation,
		Machine:    w.summary.Machine,
		Employee:   w.summary.Employee,
		TransNum:   w.exp.TransNum,
		WorkCenter: w.exp.WorkCenter,
		StartTime:  model.FormatLocal(now, loc),
	}, nil
}
