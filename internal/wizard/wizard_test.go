package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/scan"
)

func expectation() Expectation {
	return Expectation{
		TransNum:   42,
		Job:        "J100",
		SerialNo:   "S1",
		Operation:  10,
		WorkCenter: "WC1",
		Machines:   []string{"M1", "M2"},
		Employees:  []string{"E1"},
	}
}

func TestWizard_JobStep(t *testing.T) {
	w := New(expectation())

	res, err := w.Submit(scan.Payload{Type: scan.TypeJob, ID: "J999"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, StepJob, w.Step())
	assert.Equal(t, Summary{}, w.Summary())

	res, err = w.Submit(scan.Payload{Type: scan.TypeJob, ID: "J100"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "J100", w.Summary().Job)
	assert.Equal(t, StepOperation, w.Step())
}

func TestWizard_FullFlowBuildsRequest(t *testing.T) {
	w := New(expectation())
	scans := []string{
		`{"qrType":"JOB","job":"J100"}`,
		`{"qrType":"OPERATION","operNum":"0010"}`,
		"qrType: MACHINE\nmachineNumber: m2",
		`{"qrType":"EMPLOYEE","empNum":"E1"}`,
	}
	for _, s := range scans {
		res, err := w.SubmitText(s)
		require.NoError(t, err)
		require.True(t, res.Valid, res.Message)
	}
	require.Equal(t, StepDone, w.Step())

	loc := time.FixedZone("plant", 3600)
	now := time.Date(2024, 3, 4, 9, 30, 0, 0, loc)
	req, err := w.Request(now, loc)
	require.NoError(t, err)
	assert.Equal(t, "J100", req.Job)
	assert.Equal(t, "S1", req.SerialNo)
	assert.Equal(t, 10, req.Operation)
	assert.Equal(t, "m2", req.Machine)
	assert.Equal(t, "E1", req.Employee)
	assert.Equal(t, int64(42), req.TransNum)
	assert.Equal(t, "WC1", req.WorkCenter)
	assert.Equal(t, "2024-03-04T09:30:00", req.StartTime)

	_, err = w.SubmitText(`{"qrType":"JOB","job":"J100"}`)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestWizard_WrongTypeKeepsStep(t *testing.T) {
	w := New(expectation())
	_, _ = w.Submit(scan.Payload{Type: scan.TypeJob, ID: "J100"})

	res, err := w.Submit(scan.Payload{Type: scan.TypeMachine, ID: "M1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, StepOperation, w.Step())
}

func TestWizard_UnassignedMachineRejected(t *testing.T) {
	w := New(expectation())
	_, _ = w.Submit(scan.Payload{Type: scan.TypeJob, ID: "J100"})
	_, _ = w.Submit(scan.Payload{Type: scan.TypeOperation, ID: "10"})

	res, err := w.Submit(scan.Payload{Type: scan.TypeMachine, ID: "M9"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Empty(t, w.Summary().Machine)
}

func TestWizard_SelfServiceSkipsEmployee(t *testing.T) {
	exp := expectation()
	exp.SelfService = true
	exp.Actor = "E7"
	w := New(exp)

	for _, p := range []scan.Payload{
		{Type: scan.TypeJob, ID: "J100"},
		{Type: scan.TypeOperation, ID: "10"},
		{Type: scan.TypeMachine, ID: "M1"},
	} {
		res, err := w.Submit(p)
		require.NoError(t, err)
		require.True(t, res.Valid)
	}
	assert.Equal(t, StepDone, w.Step())
	assert.Equal(t, "E7", w.Summary().Employee)
}

func TestWizard_CancelAndRequestGuards(t *testing.T) {
	w := New(expectation())
	_, err := w.Request(time.Now(), time.UTC)
	assert.ErrorIs(t, err, ErrNotDone)

	require.NoError(t, w.Cancel())
	assert.Equal(t, StepCancelled, w.Step())
	assert.ErrorIs(t, w.Cancel(), ErrTerminal)

	_, err = w.Request(time.Now(), time.UTC)
	assert.ErrorIs(t, err, ErrNotDone)
}

func TestWizard_UnreadableLabel(t *testing.T) {
	w := New(expectation())
	res, err := w.SubmitText("nonsense")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, StepJob, w.Step())
}

func TestCheck_EmptyAssignmentAcceptsAny(t *testing.T) {
	exp := expectation()
	exp.Machines = nil
	res := Check(exp, StepMachine, scan.Payload{Type: scan.TypeMachine, ID: "ANY"})
	assert.True(t, res.Valid)
}

func TestParseStep(t *testing.T) {
	s, err := ParseStep("Machine")
	require.NoError(t, err)
	assert.Equal(t, StepMachine, s)

	_, err = ParseStep("done")
	assert.Error(t, err)
}
