package model

import "shopfloor/internal/jobs"

// Page is the envelope of every paged list endpoint.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
}

// ActionResponse is the envelope of every status-changing endpoint and of
// every error. Message carries the server's reason verbatim.
type ActionResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ActionRequest is the body of StartJob, PauseJob and CompleteJob.
type ActionRequest struct {
	Job        string `json:"job"`
	SerialNo   string `json:"serialNo"`
	Operation  int    `json:"operation"`
	Machine    string `json:"machine"`
	Employee   string `json:"employee"`
	TransNum   int64  `json:"transNum"`
	WorkCenter string `json:"workCenter"`
	StartTime  string `json:"startTime"`
	Stage      string `json:"stage,omitempty"`
}

// QCRequest records the quality-control outcome of a transaction.
type QCRequest struct {
	ActionRequest
	Result  string `json:"result"`
	Remarks string `json:"remarks,omitempty"`
}

const (
	QCResultPass   = "pass"
	QCResultReject = "reject"
)

// ScrapRequest records scrapped quantity against a transaction.
type ScrapRequest struct {
	ActionRequest
	Qty    int    `json:"qty"`
	Reason string `json:"reason,omitempty"`
}

// PoolActionRequest is the body of StartPool, PausePool and CompletePool.
type PoolActionRequest struct {
	Pool      string `json:"pool"`
	Machine   string `json:"machine,omitempty"`
	Employee  string `json:"employee"`
	StartTime string `json:"startTime"`
}

// ReleaseRequest creates a transaction when work is released to the floor.
type ReleaseRequest struct {
	Job         string `json:"job"`
	SerialNo    string `json:"serialNo"`
	Operation   int    `json:"operation"`
	WorkCenter  string `json:"workCenter"`
	Item        string `json:"item"`
	QtyReleased int    `json:"qtyReleased"`
	Employee    string `json:"employee,omitempty"`
	Machine     string `json:"machine,omitempty"`
	Pool        string `json:"pool,omitempty"`
}

// TransactionRow is the wire shape of a job transaction.
type TransactionRow struct {
	TransNum           int64       `json:"transNum"`
	Job                string      `json:"job"`
	SerialNo           string      `json:"serialNo"`
	OperationNumber    int         `json:"operationNumber"`
	WorkCenter         string      `json:"workCenter"`
	Item               string      `json:"item"`
	QtyReleased        int         `json:"qtyReleased"`
	QtyScrapped        int         `json:"qtyScrapped"`
	Employee           string      `json:"employee"`
	Machine            string      `json:"machine"`
	Pool               *string     `json:"pool"`
	Stage              string      `json:"stage"`
	Status             jobs.Status `json:"status"`
	AccumulatedSeconds int64       `json:"accumulatedSeconds"`
	StartTime          *string     `json:"startTime"`
	Elapsed            string      `json:"elapsed"`
}

// LogEntryRow is the wire shape of a status log entry.
type LogEntryRow struct {
	StatusID   jobs.Status `json:"statusId"`
	StatusTime string      `json:"statusTime"`
	Actor      string      `json:"actor"`
	Machine    string      `json:"machine,omitempty"`
	Stage      string      `json:"stage"`
}

// LogResponse carries a stage's status log and its reconciliation.
type LogResponse struct {
	TransNum           int64         `json:"transNum"`
	Stage              string        `json:"stage"`
	Entries            []LogEntryRow `json:"entries"`
	State              jobs.Status   `json:"state"`
	Live               bool          `json:"live"`
	RunningSince       *string       `json:"runningSince"`
	AccumulatedSeconds int64         `json:"accumulatedSeconds"`
	Elapsed            string        `json:"elapsed"`
}

// PoolResponse summarizes a job pool.
type PoolResponse struct {
	Pool               string           `json:"pool"`
	Status             jobs.Status      `json:"status"`
	Live               bool             `json:"live"`
	AccumulatedSeconds int64            `json:"accumulatedSeconds"`
	Elapsed            string           `json:"elapsed"`
	Members            []TransactionRow `json:"members"`
}

// AssignmentsResponse lists the machines and employees allowed to work a
// job operation. Empty lists mean no restriction.
type AssignmentsResponse struct {
	Machines  []string `json:"machines"`
	Employees []string `json:"employees"`
}

// AssignmentRequest adds a machine or employee to a job operation.
type AssignmentRequest struct {
	Job       string `json:"job"`
	Operation int    `json:"operation"`
	Kind      string `json:"kind"`
	Code      string `json:"code"`
}

type EmployeeRow struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type MachineRow struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	WorkCenter  string `json:"workCenter"`
}
