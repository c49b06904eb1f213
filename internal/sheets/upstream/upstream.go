// Package upstream forwards ledger operations to a spreadsheet web app
// that accepts action-tagged JSON.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

// Client implements sheets.Backend. Every call fails with a ConfigError
// when the web app URL is empty.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	now      func() time.Time
}

func New(endpoint, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		token:    token,
		http:     httpClient,
		now:      time.Now,
	}
}

// WithClock sets the reference time for decoding relative done markers.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

func (c *Client) target(action string) (string, error) {
	if c.endpoint == "" {
		return "", &sheets.ConfigError{Setting: "UPSTREAM_URL"}
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse UPSTREAM_URL: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) call(ctx context.Context, op, action, method string, payload any) (int, []byte, error) {
	target, err := c.target(action)
	if err != nil {
		return 0, nil, err
	}
	start := time.Now()
	status, body, err := sheets.Do(ctx, c.http, op, method, target, payload, nil)
	slog.DebugContext(ctx, "Upstream call",
		"action", action,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err)
	return status, body, err
}

func (c *Client) ReadAll(ctx context.Context) (core.Ledger, error) {
	status, body, err := c.call(ctx, "read all", sheets.ActionReadAll, http.MethodGet, nil)
	if err != nil {
		return core.Ledger{}, err
	}
	return sheets.DecodeReadAll(status, body, c.now())
}

func (c *Client) CreateExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	req := sheets.NewExpenseRequest(d)
	req.Action = sheets.ActionAddExpense
	status, body, err := c.call(ctx, "create expense", sheets.ActionAddExpense, http.MethodPost, req)
	if err != nil {
		return core.Expense{}, err
	}
	return sheets.ReconcileCreatedExpense(d, status, body)
}

func (c *Client) CreateRecurring(ctx context.Context, col core.Collection, r core.Recurring) (core.Recurring, error) {
	kind, err := sheets.KindOf(col)
	if err != nil {
		return core.Recurring{}, err
	}
	const op = "create subscription"
	req := sheets.SubscriptionRequest{
		Action:        sheets.ActionAddSubscription,
		Kind:          kind,
		WireRecurring: sheets.RecurringToWire(r),
	}
	status, body, err := c.call(ctx, op, sheets.ActionAddSubscription, http.MethodPost, req)
	if err != nil {
		return core.Recurring{}, err
	}
	env, err := sheets.CheckMutation(op, status, body)
	if err != nil {
		return core.Recurring{}, err
	}
	if id := strings.TrimSpace(string(env.RecordID)); id != "" {
		r.ID = id
	} else if id := strings.TrimSpace(string(env.ID)); id != "" {
		r.ID = id
	}
	return r, nil
}

func (c *Client) UpdateRecord(ctx context.Context, rec core.Record) error {
	if le, ok := rec.(core.LivingExpense); ok {
		req := sheets.LivingExpenseRequest{
			Action:        sheets.ActionUpdateLivingExpense,
			WireRecurring: sheets.RecurringToWire(le.Recurring),
		}
		return c.mutate(ctx, "update living expense", sheets.ActionUpdateLivingExpense, req)
	}
	w, err := sheets.RecordToWire(rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	req := sheets.UpdateRequest{Action: sheets.ActionUpdate, Collection: rec.Collection(), Record: raw}
	return c.mutate(ctx, "update record", sheets.ActionUpdate, req)
}

func (c *Client) DeleteRecord(ctx context.Context, col core.Collection, id string) error {
	req := sheets.DeleteRequest{Action: sheets.ActionDelete, Collection: col, ID: id}
	return c.mutate(ctx, "delete record", sheets.ActionDelete, req)
}

func (c *Client) mutate(ctx context.Context, op, action string, payload any) error {
	status, body, err := c.call(ctx, op, action, http.MethodPost, payload)
	if err != nil {
		return err
	}
	_, err = sheets.CheckMutation(op, status, body)
	return err
}

var _ sheets.Backend = (*Client)(nil)
