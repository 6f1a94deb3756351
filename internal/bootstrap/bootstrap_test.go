package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/config"
	"shopfloor/internal/db"
)

type fakeSeeder struct {
	employees map[string]db.InsertEmployeeIfMissingParams
	machines  []db.UpsertMachineParams
}

func (f *fakeSeeder) EnsureEmployee(_ context.Context, arg db.InsertEmployeeIfMissingParams) (bool, error) {
	if f.employees == nil {
		f.employees = map[string]db.InsertEmployeeIfMissingParams{}
	}
	if _, ok := f.employees[arg.Code]; ok {
		return false, nil
	}
	f.employees[arg.Code] = arg
	return true, nil
}

func (f *fakeSeeder) UpsertMachine(_ context.Context, arg db.UpsertMachineParams) (db.Machine, error) {
	f.machines = append(f.machines, arg)
	return db.Machine{Code: arg.Code}, nil
}

func TestRunSeedsEmployeesAndMachines(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bootstrap.Employees = []config.BootstrapEmployeeConfig{
		{Code: " E1 ", Name: "Ada", Role: "Operator"},
		{Code: "S1", Role: ""},
		{Code: ""},
	}
	cfg.Bootstrap.Machines = []config.BootstrapMachineConfig{{Code: "M1", Description: "Lathe", WorkCenter: "WC1"}}

	seeder := &fakeSeeder{}
	require.NoError(t, Run(context.Background(), cfg, seeder, nil))
	require.NoError(t, Run(context.Background(), cfg, seeder, nil))

	assert.Len(t, seeder.employees, 2)
	assert.Equal(t, "operator", seeder.employees["E1"].Role)
	assert.Equal(t, "S1", seeder.employees["S1"].Name)
	assert.Len(t, seeder.machines, 2)
	assert.Equal(t, "WC1", seeder.machines[0].WorkCenter)
}

func TestRunRejectsUnknownRole(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bootstrap.Employees = []config.BootstrapEmployeeConfig{{Code: "E1", Role: "foreman"}}

	err := Run(context.Background(), cfg, &fakeSeeder{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}
