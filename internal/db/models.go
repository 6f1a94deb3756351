package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Assignment struct {
	JobNum  string
	OperNum int32
	Kind    string
	Code    string
}

type AuditEvent struct {
	ID        uuid.UUID
	Action    string
	Actor     sql.NullString
	TransNum  sql.NullInt64
	Ip        sql.NullString
	UserAgent sql.NullString
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
}

type Employee struct {
	Code      string
	Name      string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type JobTransaction struct {
	TransNum           int64
	JobNum             string
	SerialNo           string
	OperNum            int32
	WorkCenter         string
	Item               string
	QtyReleased        int32
	QtyScrapped        int32
	Employee           sql.NullString
	Machine            sql.NullString
	PoolNum            sql.NullString
	Stage              string
	StatusID           int16
	AccumulatedSeconds int64
	RunStart           sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           sql.NullTime
}

type Machine struct {
	Code        string
	Description string
	WorkCenter  string
	CreatedAt   time.Time
}

type QcResult struct {
	ID         int64
	TransNum   int64
	Result     string
	Remarks    string
	Actor      string
	RecordedAt time.Time
}

type ScrapRecord struct {
	ID         int64
	TransNum   int64
	Stage      string
	Qty        int32
	Reason     string
	Actor      string
	RecordedAt time.Time
}

type StatusLog struct {
	ID         int64
	TransNum   int64
	Stage      string
	StatusID   int16
	StatusTime time.Time
	Actor      string
	Machine    sql.NullString
	CreatedAt  time.Time
}
