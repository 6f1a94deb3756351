package db

import (
	"context"
	"database/sql"
	"time"
)

const jobTransactionColumns = `trans_num, job_num, serial_no, oper_num, work_center, item, qty_released, qty_scrapped,
       employee, machine, pool_num, stage, status_id, accumulated_seconds, run_start,
       created_at, updated_at, closed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobTransaction(row rowScanner) (JobTransaction, error) {
	var i JobTransaction
	err := row.Scan(
		&i.TransNum,
		&i.JobNum,
		&i.SerialNo,
		&i.OperNum,
		&i.WorkCenter,
		&i.Item,
		&i.QtyReleased,
		&i.QtyScrapped,
		&i.Employee,
		&i.Machine,
		&i.PoolNum,
		&i.Stage,
		&i.StatusID,
		&i.AccumulatedSeconds,
		&i.RunStart,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ClosedAt,
	)
	return i, err
}

func scanJobTransactions(rows *sql.Rows) ([]JobTransaction, error) {
	defer rows.Close()
	var items []JobTransaction
	for rows.Next() {
		i, err := scanJobTransaction(rows)
		if err != nil {
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

const insertTransaction = `-- name: InsertTransaction :one
INSERT INTO job_transactions (job_num, serial_no, oper_num, work_center, item, qty_released, employee, machine, pool_num)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + jobTransactionColumns

type InsertTransactionParams struct {
	JobNum      string
	SerialNo    string
	OperNum     int32
	WorkCenter  string
	Item        string
	QtyReleased int32
	Employee    sql.NullString
	Machine     sql.NullString
	PoolNum     sql.NullString
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (JobTransaction, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction,
		arg.JobNum,
		arg.SerialNo,
		arg.OperNum,
		arg.WorkCenter,
		arg.Item,
		arg.QtyReleased,
		arg.Employee,
		arg.Machine,
		arg.PoolNum,
	)
	return scanJobTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + jobTransactionColumns + `
FROM job_transactions
WHERE trans_num = $1`

func (q *Queries) GetTransaction(ctx context.Context, transNum int64) (JobTransaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, transNum)
	return scanJobTransaction(row)
}

const getTransactionForUpdate = `-- name: GetTransactionForUpdate :one
SELECT ` + jobTransactionColumns + `
FROM job_transactions
WHERE trans_num = $1
FOR UPDATE`

func (q *Queries) GetTransactionForUpdate(ctx context.Context, transNum int64) (JobTransaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionForUpdate, transNum)
	return scanJobTransaction(row)
}

const getPreviousOperation = `-- name: GetPreviousOperation :one
SELECT ` + jobTransactionColumns + `
FROM job_transactions
WHERE job_num = $1 AND serial_no = $2 AND oper_num < $3
ORDER BY oper_num DESC
LIMIT 1`

type GetPreviousOperationParams struct {
	JobNum   string
	SerialNo string
	OperNum  int32
}

func (q *Queries) GetPreviousOperation(ctx context.Context, arg GetPreviousOperationParams) (JobTransaction, error) {
	row := q.db.QueryRowContext(ctx, getPreviousOperation, arg.JobNum, arg.SerialNo, arg.OperNum)
	return scanJobTransaction(row)
}

const listTransactionsFilter = `
WHERE ($1::text IS NULL OR employee = $1 OR ($2::boolean AND employee IS NULL))
  AND ($3::text IS NULL OR machine = $3)
  AND ($4::smallint IS NULL OR status_id = $4)
  AND ($5::text IS NULL OR stage = $5)
  AND ($6::text IS NULL OR pool_num = $6)`

const listTransactions = `-- name: ListTransactions :many
SELECT ` + jobTransactionColumns + `
FROM job_transactions` + listTransactionsFilter + `
ORDER BY job_num, serial_no, oper_num, trans_num
LIMIT $7 OFFSET $8`

type ListTransactionsParams struct {
	Employee          sql.NullString
	IncludeUnassigned bool
	Machine           sql.NullString
	StatusID          sql.NullInt16
	Stage             sql.NullString
	PoolNum           sql.NullString
	Limit             int32
	Offset            int32
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]JobTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions,
		arg.Employee,
		arg.IncludeUnassigned,
		arg.Machine,
		arg.StatusID,
		arg.Stage,
		arg.PoolNum,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanJobTransactions(rows)
}

const countTransactions = `-- name: CountTransactions :one
SELECT count(*)
FROM job_transactions` + listTransactionsFilter

func (q *Queries) CountTransactions(ctx context.Context, arg ListTransactionsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions,
		arg.Employee,
		arg.IncludeUnassigned,
		arg.Machine,
		arg.StatusID,
		arg.Stage,
		arg.PoolNum,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listPoolMembers = `-- name: ListPoolMembers :many
SELECT ` + jobTransactionColumns + `
FROM job_transactions
WHERE pool_num = $1
ORDER BY trans_num`

func (q *Queries) ListPoolMembers(ctx context.Context, poolNum string) ([]JobTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listPoolMembers, poolNum)
	if err != nil {
		return nil, err
	}
	return scanJobTransactions(rows)
}

const listPoolMembersForUpdate = `-- name: ListPoolMembersForUpdate :many
SELECT ` + jobTransactionColumns + `
FROM job_transactions
WHERE pool_num = $1
ORDER BY trans_num
FOR UPDATE`

func (q *Queries) ListPoolMembersForUpdate(ctx context.Context, poolNum string) ([]JobTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listPoolMembersForUpdate, poolNum)
	if err != nil {
		return nil, err
	}
	return scanJobTransactions(rows)
}

const updateTransactionState = `-- name: UpdateTransactionState :exec
UPDATE job_transactions
SET stage = $2,
    status_id = $3,
    accumulated_seconds = $4,
    run_start = $5,
    employee = COALESCE($6, employee),
    machine = COALESCE($7, machine),
    closed_at = $8,
    updated_at = $9
WHERE trans_num = $1`

type UpdateTransactionStateParams struct {
	TransNum           int64
	Stage              string
	StatusID           int16
	AccumulatedSeconds int64
	RunStart           sql.NullTime
	Employee           sql.NullString
	Machine            sql.NullString
	ClosedAt           sql.NullTime
	UpdatedAt          time.Time
}

func (q *Queries) UpdateTransactionState(ctx context.Context, arg UpdateTransactionStateParams) error {
	_, err := q.db.ExecContext(ctx, updateTransactionState,
		arg.TransNum,
		arg.Stage,
		arg.StatusID,
		arg.AccumulatedSeconds,
		arg.RunStart,
		arg.Employee,
		arg.Machine,
		arg.ClosedAt,
		arg.UpdatedAt,
	)
	return err
}

const addScrappedQty = `-- name: AddScrappedQty :one
UPDATE job_transactions
SET qty_scrapped = qty_scrapped + $2,
    updated_at = $3
WHERE trans_num = $1
RETURNING qty_scrapped`

type AddScrappedQtyParams struct {
	TransNum  int64
	Qty       int32
	UpdatedAt time.Time
}

func (q *Queries) AddScrappedQty(ctx context.Context, arg AddScrappedQtyParams) (int32, error) {
	row := q.db.QueryRowContext(ctx, addScrappedQty, arg.TransNum, arg.Qty, arg.UpdatedAt)
	var qty int32
	err := row.Scan(&qty)
	return qty, err
}

const countLiveTransactions = `-- name: CountLiveTransactions :many
SELECT stage, count(*)
FROM job_transactions
WHERE status_id = 1
GROUP BY stage`

type CountLiveTransactionsRow struct {
	Stage string
	Count int64
}

func (q *Queries) CountLiveTransactions(ctx context.Context) ([]CountLiveTransactionsRow, error) {
	rows, err := q.db.QueryContext(ctx, countLiveTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountLiveTransactionsRow
	for rows.Next() {
		var i CountLiveTransactionsRow
		if err := rows.Scan(&i.Stage, &i.Count); err != nil {
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

const deleteClosedTransactionsBefore = `-- name: DeleteClosedTransactionsBefore :execrows
DELETE FROM job_transactions
WHERE stage = 'closed' AND closed_at < $1`

func (q *Queries) DeleteClosedTransactionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteClosedTransactionsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
