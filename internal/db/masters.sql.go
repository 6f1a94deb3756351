package db

import (
	"context"
)

const upsertEmployee = `-- name: UpsertEmployee :one
INSERT INTO employees (code, name, role, active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE
SET name = EXCLUDED.name, role = EXCLUDED.role, active = EXCLUDED.active
RETURNING code, name, role, active, created_at`

type UpsertEmployeeParams struct {
	Code   string
	Name   string
	Role   string
	Active bool
}

func (q *Queries) UpsertEmployee(ctx context.Context, arg UpsertEmployeeParams) (Employee, error) {
	row := q.db.QueryRowContext(ctx, upsertEmployee, arg.Code, arg.Name, arg.Role, arg.Active)
	var i Employee
	err := row.Scan(&i.Code, &i.Name, &i.Role, &i.Active, &i.CreatedAt)
	return i, err
}

const insertEmployeeIfMissing = `-- name: InsertEmployeeIfMissing :execrows
INSERT INTO employees (code, name, role, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (code) DO NOTHING`

type InsertEmployeeIfMissingParams struct {
	Code string
	Name string
	Role string
}

func (q *Queries) InsertEmployeeIfMissing(ctx context.Context, arg InsertEmployeeIfMissingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertEmployeeIfMissing, arg.Code, arg.Name, arg.Role)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getEmployee = `-- name: GetEmployee :one
SELECT code, name, role, active, created_at
FROM employees
WHERE code = $1`

func (q *Queries) GetEmployee(ctx context.Context, code string) (Employee, error) {
	row := q.db.QueryRowContext(ctx, getEmployee, code)
	var i Employee
	err := row.Scan(&i.Code, &i.Name, &i.Role, &i.Active, &i.CreatedAt)
	return i, err
}

const listEmployees = `-- name: ListEmployees :many
SELECT code, name, role, active, created_at
FROM employees
ORDER BY code`

func (q *Queries) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := q.db.QueryContext(ctx, listEmployees)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Employee
	for rows.Next() {
		var i Employee
		if err := rows.Scan(&i.Code, &i.Name, &i.Role, &i.Active, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertMachine = `-- name: UpsertMachine :one
INSERT INTO machines (code, description, work_center)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE
SET description = EXCLUDED.description, work_center = EXCLUDED.work_center
RETURNING code, description, work_center, created_at`

type UpsertMachineParams struct {
	Code        string
	Description string
	WorkCenter  string
}

func (q *Queries) UpsertMachine(ctx context.Context, arg UpsertMachineParams) (Machine, error) {
	row := q.db.QueryRowContext(ctx, upsertMachine, arg.Code, arg.Description, arg.WorkCenter)
	var i Machine
	err := row.Scan(&i.Code, &i.Description, &i.WorkCenter, &i.CreatedAt)
	return i, err
}

const listMachines = `-- name: ListMachines :many
SELECT code, description, work_center, created_at
FROM machines
ORDER BY code`

func (q *Queries) ListMachines(ctx context.Context) ([]Machine, error) {
	rows, err := q.db.QueryContext(ctx, listMachines)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Machine
	for rows.Next() {
		var i Machine
		if err := rows.Scan(&i.Code, &i.Description, &i.WorkCenter, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertAssignment = `-- name: InsertAssignment :exec
INSERT INTO assignments (job_num, oper_num, kind, code)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`

func (q *Queries) InsertAssignment(ctx context.Context, arg Assignment) error {
	_, err := q.db.ExecContext(ctx, insertAssignment, arg.JobNum, arg.OperNum, arg.Kind, arg.Code)
	return err
}

const listAssignments = `-- name: ListAssignments :many
SELECT job_num, oper_num, kind, code
FROM assignments
WHERE job_num = $1 AND oper_num = $2
ORDER BY kind, code`

type ListAssignmentsParams struct {
	JobNum  string
	OperNum int32
}

func (q *Queries) ListAssignments(ctx context.Context, arg ListAssignmentsParams) ([]Assignment, error) {
	rows, err := q.db.QueryContext(ctx, listAssignments, arg.JobNum, arg.OperNum)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Assignment
	for rows.Next() {
		var i Assignment
		if err := rows.Scan(&i.JobNum, &i.OperNum, &i.Kind, &i.Code); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
