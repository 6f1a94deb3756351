package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_JSON(t *testing.T) {
	p, err := Parse(`{"qrType":"JOB","job":"J100","serialNo":"S-01","operNum":10}`)
	require.NoError(t, err)
	assert.Equal(t, TypeJob, p.Type)
	assert.Equal(t, "J100", p.ID)
	assert.Equal(t, "S-01", p.Field("serialNo"))
	assert.Equal(t, "10", p.Field("OPERNUM"))
}

func TestParse_JSONNumericIdentifier(t *testing.T) {
	p, err := Parse(`{"QRTYPE":"machine","machineNumber":4021}`)
	require.NoError(t, err)
	assert.Equal(t, TypeMachine, p.Type)
	assert.Equal(t, "4021", p.ID)
}

func TestParse_JSONFirstKeyWinsAcrossCase(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := Parse(`{"qrType":"JOB","Job":"J100","job":"J999"}`)
		require.NoError(t, err)
		assert.Equal(t, "J100", p.ID)
	}
}

func TestParse_KeyValueLongLine(t *testing.T) {
	long := strings.Repeat("x", 70*1024)
	p, err := Parse("note: " + long + "\nqrType: EMPLOYEE\nempNum: E7")
	require.NoError(t, err)
	assert.Equal(t, TypeEmployee, p.Type)
	assert.Equal(t, "E7", p.ID)
	assert.Len(t, p.Field("note"), len(long))
}

func TestParse_KeyValueFallback(t *testing.T) {
	text := "qrType: EMP\n\nEmp Num: E1\ngarbage line\nName: Ada: Lovelace\n"
	p, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, TypeEmployee, p.Type)
	assert.Equal(t, "E1", p.ID)
	assert.Equal(t, "Ada: Lovelace", p.Field("name"))
}

func TestParse_BrokenJSONFallsBackToLines(t *testing.T) {
	p, err := Parse("{qrType: OPERATION\noperNum: 20")
	require.NoError(t, err)
	assert.Equal(t, TypeOperation, p.Type)
	assert.Equal(t, "20", p.ID)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Parse("no colons here")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Parse(`{"qrType":"PALLET","id":"X"}`)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Parse(`{"qrType":"JOB","serialNo":"S1"}`)
	assert.ErrorIs(t, err, ErrMissingIdentifier)
}
