package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertQCResult = `-- name: InsertQCResult :exec
INSERT INTO qc_results (trans_num, result, remarks, actor, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

type InsertQCResultParams struct {
	TransNum   int64
	Result     string
	Remarks    string
	Actor      string
	RecordedAt time.Time
}

func (q *Queries) InsertQCResult(ctx context.Context, arg InsertQCResultParams) error {
	_, err := q.db.ExecContext(ctx, insertQCResult, arg.TransNum, arg.Result, arg.Remarks, arg.Actor, arg.RecordedAt)
	return err
}

const insertScrapRecord = `-- name: InsertScrapRecord :exec
INSERT INTO scrap_records (trans_num, stage, qty, reason, actor, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertScrapRecordParams struct {
	TransNum   int64
	Stage      string
	Qty        int32
	Reason     string
	Actor      string
	RecordedAt time.Time
}

func (q *Queries) InsertScrapRecord(ctx context.Context, arg InsertScrapRecordParams) error {
	_, err := q.db.ExecContext(ctx, insertScrapRecord, arg.TransNum, arg.Stage, arg.Qty, arg.Reason, arg.Actor, arg.RecordedAt)
	return err
}

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (id, action, actor, trans_num, ip, user_agent, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type InsertAuditEventParams struct {
	ID        uuid.UUID
	Action    string
	Actor     sql.NullString
	TransNum  sql.NullInt64
	Ip        sql.NullString
	UserAgent sql.NullString
	Metadata  pqtype.NullRawMessage
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.ExecContext(ctx, insertAuditEvent,
		arg.ID,
		arg.Action,
		arg.Actor,
		arg.TransNum,
		arg.Ip,
		arg.UserAgent,
		arg.Metadata,
	)
	return err
}

const deleteAuditEventsBefore = `-- name: DeleteAuditEventsBefore :execrows
DELETE FROM audit_events
WHERE created_at < $1`

func (q *Queries) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAuditEventsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
