package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/jobs"
)

func TestTransactionRow_UnmarshalCanonical(t *testing.T) {
	in := `{"transNum":7,"job":"J100","serialNo":"S1","operationNumber":10,"workCenter":"WC1",
		"item":"ITM","qtyReleased":5,"qtyScrapped":0,"employee":"E1","machine":"M1","pool":null,
		"stage":"production","status":"1","accumulatedSeconds":30,"startTime":"2024-03-04T08:00:00","elapsed":"00:00:30"}`

	var row TransactionRow
	require.NoError(t, json.Unmarshal([]byte(in), &row))

	start := "2024-03-04T08:00:00"
	want := TransactionRow{
		TransNum: 7, Job: "J100", SerialNo: "S1", OperationNumber: 10, WorkCenter: "WC1",
		Item: "ITM", QtyReleased: 5, Employee: "E1", Machine: "M1", Stage: "production",
		Status: jobs.StatusStarted, AccumulatedSeconds: 30, StartTime: &start, Elapsed: "00:00:30",
	}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactionRow_UnmarshalLegacyShape(t *testing.T) {
	// Legacy endpoints use different casing, alias names and numbers as strings.
	in := `{"TransNum":"12","Job":"J200","SerialNo":"0001","OperNum":"20","WC":"PAINT",
		"EmpNum":"E9","MachineNumber":42,"PoolNum":"P-3","Status":2,"Accumulated":"125"}`

	var row TransactionRow
	require.NoError(t, json.Unmarshal([]byte(in), &row))

	assert.Equal(t, int64(12), row.TransNum)
	assert.Equal(t, "J200", row.Job)
	assert.Equal(t, "0001", row.SerialNo)
	assert.Equal(t, 20, row.OperationNumber)
	assert.Equal(t, "PAINT", row.WorkCenter)
	assert.Equal(t, "E9", row.Employee)
	assert.Equal(t, "42", row.Machine)
	require.NotNil(t, row.Pool)
	assert.Equal(t, "P-3", *row.Pool)
	assert.Equal(t, jobs.StatusPaused, row.Status)
	assert.Equal(t, int64(125), row.AccumulatedSeconds)
	assert.Nil(t, row.StartTime)
}

func TestTransactionRow_UnmarshalBadStatus(t *testing.T) {
	var row TransactionRow
	err := json.Unmarshal([]byte(`{"job":"J1","status":"9"}`), &row)
	require.Error(t, err)
}

func TestTransactionRow_Normalize(t *testing.T) {
	loc := time.FixedZone("plant", 2*3600)
	start := "2024-03-04T08:00:00"
	pool := " P1 "
	row := TransactionRow{
		TransNum: 3, Job: " J100 ", OperationNumber: 10, Status: jobs.StatusStarted,
		AccumulatedSeconds: 60, StartTime: &start, Pool: &pool,
	}

	tx, err := row.Normalize(loc)
	require.NoError(t, err)
	assert.Equal(t, "J100", tx.Key.Job)
	assert.Equal(t, "P1", tx.Pool)
	assert.Equal(t, jobs.StageProduction, tx.Stage)
	require.True(t, tx.Live())
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 0, loc), *tx.RunningSince)

	e := tx.Elapsed()
	assert.Equal(t, int64(185), e.Seconds(tx.RunningSince.Add(125*time.Second)))
}

func TestParseLocal(t *testing.T) {
	loc := time.FixedZone("plant", -5*3600)

	got, err := ParseLocal("2024-03-04T08:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 0, loc), got)

	got, err = ParseLocal("2024-03-04T13:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, loc)))

	_, err = ParseLocal("yesterday", loc)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	assert.Equal(t, "2024-03-04T08:00:00", FormatLocal(time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), loc))
}

func TestWallClock(t *testing.T) {
	loc := time.FixedZone("plant", 3*3600)
	stored := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-04T08:00:00", FormatLocal(WallClock(stored, loc), loc))
}
