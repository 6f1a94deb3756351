package db

import (
	"context"
	"database/sql"
	"time"
)

// InsertStatusLog appends an entry unless the stage already holds a later
// one; in that case no row is returned and Scan reports sql.ErrNoRows.
const insertStatusLog = `-- name: InsertStatusLog :one
INSERT INTO status_log (trans_num, stage, status_id, status_time, actor, machine)
SELECT $1::bigint, $2::text, $3::smallint, $4::timestamp, $5::text, $6::text
WHERE NOT EXISTS (
    SELECT 1 FROM status_log later
    WHERE later.trans_num = $1 AND later.stage = $2 AND later.status_time > $4::timestamp
)
RETURNING id, trans_num, stage, status_id, status_time, actor, machine, created_at`

type InsertStatusLogParams struct {
	TransNum   int64
	Stage      string
	StatusID   int16
	StatusTime time.Time
	Actor      string
	Machine    sql.NullString
}

func (q *Queries) InsertStatusLog(ctx context.Context, arg InsertStatusLogParams) (StatusLog, error) {
	row := q.db.QueryRowContext(ctx, insertStatusLog,
		arg.TransNum,
		arg.Stage,
		arg.StatusID,
		arg.StatusTime,
		arg.Actor,
		arg.Machine,
	)
	var i StatusLog
	err := row.Scan(
		&i.ID,
		&i.TransNum,
		&i.Stage,
		&i.StatusID,
		&i.StatusTime,
		&i.Actor,
		&i.Machine,
		&i.CreatedAt,
	)
	return i, err
}

const listStatusLog = `-- name: ListStatusLog :many
SELECT id, trans_num, stage, status_id, status_time, actor, machine, created_at
FROM status_log
WHERE trans_num = $1 AND stage = $2
ORDER BY status_time, id`

type ListStatusLogParams struct {
	TransNum int64
	Stage    string
}

func (q *Queries) ListStatusLog(ctx context.Context, arg ListStatusLogParams) ([]StatusLog, error) {
	rows, err := q.db.QueryContext(ctx, listStatusLog, arg.TransNum, arg.Stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatusLog
	for rows.Next() {
		var i StatusLog
		if err := rows.Scan(
			&i.ID,
			&i.TransNum,
			&i.Stage,
			&i.StatusID,
			&i.StatusTime,
			&i.Actor,
			&i.Machine,
			&i.CreatedAt,
		); err != nil {
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
