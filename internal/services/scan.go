package services

import (
	"context"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/metrics"
	"shopfloor/internal/scan"
	"shopfloor/internal/store"
	"shopfloor/internal/wizard"
)

// ScanCheckRequest asks whether one decoded QR label satisfies a wizard
// step for a transaction.
type ScanCheckRequest struct {
	TransNum int64
	Step     string
	QR       string
}

// ScanService validates wizard scans against server-side assignments.
type ScanService interface {
	Check(ctx context.Context, req ScanCheckRequest) (wizard.StepResult, error)
	Expectation(ctx context.Context, transNum int64) (wizard.Expectation, error)
}

type scanService struct {
	st *store.Store
}

func NewScanService(st *store.Store) ScanService {
	return &scanService{st: st}
}

// Expectation builds the wizard expectation of a transaction from its row
// and assignment set.
func (s *scanService) Expectation(ctx context.Context, transNum int64) (wizard.Expectation, error) {
	row, err := s.st.GetTransaction(ctx, transNum)
	if errors.Is(err, store.ErrNotFound) {
		return wizard.Expectation{}, notFound("transaction %d not found", transNum)
	}
	if err != nil {
		return wizard.Expectation{}, errors.Wrap(err, "load transaction")
	}
	machines, employees, err := s.st.Assignments(ctx, row.JobNum, row.OperNum)
	if err != nil {
		return wizard.Expectation{}, errors.Wrap(err, "load assignments")
	}
	return wizard.Expectation{
		TransNum:   row.TransNum,
		Job:        row.JobNum,
		SerialNo:   row.SerialNo,
		Operation:  int(row.OperNum),
		WorkCenter: row.WorkCenter,
		Machines:   machines,
		Employees:  employees,
	}, nil
}

func (s *scanService) Check(ctx context.Context, req ScanCheckRequest) (wizard.StepResult, error) {
	if req.TransNum <= 0 {
		return wizard.StepResult{}, invalid("transNum is required")
	}
	step, err := wizard.ParseStep(req.Step)
	if err != nil {
		return wizard.StepResult{}, invalid("invalid step %q", req.Step)
	}
	exp, err := s.Expectation(ctx, req.TransNum)
	if err != nil {
		return wizard.StepResult{}, err
	}

	var res wizard.StepResult
	p, err := scan.Parse(req.QR)
	if err != nil {
		res = wizard.StepResult{Step: step, Message: "Unreadable label: " + err.Error()}
	} else {
		res = wizard.Check(exp, step, p)
	}
	metrics.RecordScanCheck(step.String(), res.Valid)
	return res, nil
}
