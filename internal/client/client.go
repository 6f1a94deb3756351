// Package client is the Go client of the shop-floor REST API. Wire rows
// are decoded into the loose model DTOs and normalized to
// model.Transaction once, here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

// Error classes. Every error returned by Client is marked with exactly
// one of them.
var (
	// ErrTransport covers network failures, undecodable responses and
	// server-side internal errors.
	ErrTransport = errors.New("transport failure")
	// ErrInvalid covers malformed requests, unknown resources and
	// identity failures.
	ErrInvalid = errors.New("invalid request")
	// ErrRejected is a business-rule rejection. The error text is the
	// server's message verbatim.
	ErrRejected = errors.New("rejected")
)

// Client talks to one shop-floor server. The zero value is not usable;
// construct it with New.
type Client struct {
	base     *url.URL
	http     *http.Client
	employee string
	loc      *time.Location
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEmployee sets the X-Employee identity sent with every request.
func WithEmployee(code string) Option {
	return func(c *Client) { c.employee = strings.TrimSpace(code) }
}

// WithLocation sets the location local-time strings are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Mark(errors.Newf("invalid server url %q", baseURL), ErrInvalid)
	}
	c := &Client{base: u, http: http.DefaultClient, loc: time.Local}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Employee returns the identity the client acts as.
func (c *Client) Employee() string { return c.employee }

// Location returns the location local-time strings are interpreted in.
func (c *Client) Location() *time.Location { return c.loc }

// ListFilter narrows ListTransactions. Zero fields are not sent.
type ListFilter struct {
	Employee string
	Machine  string
	Status   *jobs.Status
	Stage    jobs.Stage
	Pool     string
	Limit    int
	Offset   int
}

func (f ListFilter) query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("employee", f.Employee)
	set("machine", f.Machine)
	set("stage", string(f.Stage))
	set("pool", f.Pool)
	if f.Status != nil {
		code := f.Status.Code()
		if code == "" {
			code = "0"
		}
		q.Set("status", code)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// ListTransactions returns one page of transactions and the total count.
func (c *Client) ListTransactions(ctx context.Context, f ListFilter) ([]model.Transaction, int64, error) {
	var page model.Page[model.TransactionRow]
	if err := c.do(ctx, http.MethodGet, "/api/transactions", f.query(), nil, &page); err != nil {
		return nil, 0, err
	}
	out := make([]model.Transaction, 0, len(page.Data))
	for _, r := range page.Data {
		t, err := r.Normalize(c.loc)
		if err != nil {
			return nil, 0, errors.Mark(errors.Wrapf(err, "normalize transaction %d", r.TransNum), ErrTransport)
		}
		out = append(out, t)
	}
	return out, page.Total, nil
}

func (c *Client) GetTransaction(ctx context.Context, transNum int64) (model.Transaction, error) {
	var row model.TransactionRow
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/transactions/%d", transNum), nil, nil, &row); err != nil {
		return model.Transaction{}, err
	}
	t, err := row.Normalize(c.loc)
	if err != nil {
		return model.Transaction{}, errors.Mark(errors.Wrapf(err, "normalize transaction %d", transNum), ErrTransport)
	}
	return t, nil
}

// Log is a stage's status log, normalized.
type Log struct {
	TransNum int64
	Stage    jobs.Stage
	Entries  []jobs.LogEntry
}

// GetLog fetches the status log of one stage; an empty stage selects the
// transaction's current stage.
func (c *Client) GetLog(ctx context.Context, transNum int64, stage jobs.Stage) (Log, error) {
	q := url.Values{}
	if stage != "" {
		q.Set("stage", string(stage))
	}
	var resp model.LogResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/transactions/%d/log", transNum), q, nil, &resp); err != nil {
		return Log{}, err
	}
	out := Log{TransNum: resp.TransNum, Stage: jobs.Stage(resp.Stage)}
	for _, e := range resp.Entries {
		entry, err := e.Normalize(c.loc)
		if err != nil {
			return Log{}, errors.Mark(errors.Wrap(err, "normalize log entry"), ErrTransport)
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}

// Assignments returns the machines and employees allowed on a job
// operation.
func (c *Client) Assignments(ctx context.Context, job string, operation int) (model.AssignmentsResponse, error) {
	q := url.Values{"job": {job}, "operation": {strconv.Itoa(operation)}}
	var resp model.AssignmentsResponse
	err := c.do(ctx, http.MethodGet, "/api/assignments", q, nil, &resp)
	return resp, err
}

// ScanCheck validates one decoded QR label against a wizard step
// server-side.
func (c *Client) ScanCheck(ctx context.Context, transNum int64, step, qr string) (bool, string, error) {
	body := map[string]any{"transNum": transNum, "step": step, "qr": qr}
	var resp struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scan/check", nil, body, &resp); err != nil {
		return false, "", err
	}
	return resp.Valid, resp.Message, nil
}

func (c *Client) Start(ctx context.Context, req model.ActionRequest) (string, error) {
	return c.action(ctx, "StartJob", req)
}

func (c *Client) Pause(ctx context.Context, req model.ActionRequest) (string, error) {
	return c.action(ctx, "PauseJob", req)
}

func (c *Client) Complete(ctx context.Context, req model.ActionRequest) (string, error) {
	return c.action(ctx, "CompleteJob", req)
}

func (c *Client) QC(ctx context.Context, req model.QCRequest) (string, error) {
	return c.action(ctx, "QCJob", req)
}

func (c *Client) Verify(ctx context.Context, req model.ActionRequest) (string, error) {
	return c.action(ctx, "VerifyJob", req)
}

func (c *Client) Scrap(ctx context.Context, req model.ScrapRequest) (string, error) {
	return c.action(ctx, "ScrapJob", req)
}

// PoolResult reports which pool members a pool action applied to.
type PoolResult struct {
	Message string
	Applied []int64
	Skipped map[int64]string
}

func (c *Client) StartPool(ctx context.Context, req model.PoolActionRequest) (PoolResult, error) {
	return c.poolAction(ctx, "StartPool", req)
}

func (c *Client) PausePool(ctx context.Context, req model.PoolActionRequest) (PoolResult, error) {
	return c.poolAction(ctx, "PausePool", req)
}

func (c *Client) CompletePool(ctx context.Context, req model.PoolActionRequest) (PoolResult, error) {
	return c.poolAction(ctx, "CompletePool", req)
}

func (c *Client) action(ctx context.Context, name string, body any) (string, error) {
	var resp model.ActionResponse
	if err := c.do(ctx, http.MethodPost, "/api/"+name, nil, body, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", errors.Mark(errors.New(resp.Message), ErrRejected)
	}
	return resp.Message, nil
}

func (c *Client) poolAction(ctx context.Context, name string, req model.PoolActionRequest) (PoolResult, error) {
	var resp struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Applied []int64 `json:"applied"`
		Skipped []struct {
			TransNum int64  `json:"transNum"`
			Reason   string `json:"reason"`
		} `json:"skipped"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/"+name, nil, req, &resp); err != nil {
		return PoolResult{}, err
	}
	if !resp.Success {
		return PoolResult{}, errors.Mark(errors.New(resp.Message), ErrRejected)
	}
	out := PoolResult{Message: resp.Message, Applied: resp.Applied, Skipped: map[int64]string{}}
	for _, s := range resp.Skipped {
		out.Skipped[s.TransNum] = s.Reason
	}
	return out, nil
}

// do sends one request and decodes a 2xx body into out. Non-2xx bodies
// are decoded as the action envelope and classified by status code.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "encode request"), ErrInvalid)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "build request"), ErrInvalid)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.employee != "" {
		req.Header.Set("X-Employee", c.employee)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrTransport)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "read response"), ErrTransport)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Mark(errors.Wrapf(err, "decode %s %s", method, path), ErrTransport)
		}
		return nil
	}
	return classify(resp.StatusCode, raw)
}

// classify turns an error response into a marked error carrying the
// server's message, falling back to the HTTP status text.
func classify(status int, raw []byte) error {
	var env model.ActionResponse
	msg := ""
	if json.Unmarshal(raw, &env) == nil {
		msg = strings.TrimSpace(env.Message)
	}
	if msg == "" {
		msg = fmt.Sprintf("server returned %d %s", status, http.StatusText(status))
	}

	switch {
	case status == http.StatusConflict:
		return errors.Mark(errors.New(msg), ErrRejected)
	case status >= 400 && status < 500:
		return errors.Mark(errors.New(msg), ErrInvalid)
	}
	return errors.Mark(errors.New(msg), ErrTransport)
}
