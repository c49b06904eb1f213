// Package remote talks to the kakeibo proxy endpoints over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

// Proxy routes.
const (
	PathReadAll       = "/api/expenses"
	PathSubmit        = "/api/submit"
	PathSubscription  = "/api/subscription"
	PathLivingExpense = "/api/living-expense"
	PathUpdate        = "/api/update"
	PathDelete        = "/api/delete"
)

// Client implements sheets.Backend against a kakeibo proxy.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithClock sets the reference time for decoding relative done markers.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string) (string, error) {
	if c.baseURL == "" {
		return "", &sheets.ConfigError{Setting: "API_BASE_URL"}
	}
	return c.baseURL + path, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (int, []byte, error) {
	u, err := c.url(path)
	if err != nil {
		return 0, nil, err
	}
	return sheets.Do(ctx, c.http, op, method, u, payload, nil)
}

func (c *Client) ReadAll(ctx context.Context) (core.Ledger, error) {
	status, body, err := c.do(ctx, "read all", http.MethodGet, PathReadAll, nil)
	if err != nil {
		return core.Ledger{}, err
	}
	return sheets.DecodeReadAll(status, body, c.now())
}

func (c *Client) CreateExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	status, body, err := c.do(ctx, "create expense", http.MethodPost, PathSubmit, sheets.NewExpenseRequest(d))
	if err != nil {
		return core.Expense{}, err
	}
	return sheets.ReconcileCreatedExpense(d, status, body)
}

// CreateRecurring posts an addSubscription request. The returned template
// carries the id from the response when one is present.
func (c *Client) CreateRecurring(ctx context.Context, col core.Collection, r core.Recurring) (core.Recurring, error) {
	kind, err := sheets.KindOf(col)
	if err != nil {
		return core.Recurring{}, err
	}
	req := sheets.SubscriptionRequest{
		Action:        sheets.ActionAddSubscription,
		Kind:          kind,
		WireRecurring: sheets.RecurringToWire(r),
	}
	const op = "create subscription"
	status, body, err := c.do(ctx, op, http.MethodPost, PathSubscription, req)
	if err != nil {
		return core.Recurring{}, err
	}
	env, err := sheets.CheckMutation(op, status, body)
	if err != nil {
		return core.Recurring{}, err
	}
	for _, id := range []sheets.FlexString{env.RecordID, env.ID} {
		if s := strings.TrimSpace(string(id)); s != "" {
			r.ID = s
			break
		}
	}
	return r, nil
}

// UpdateLivingExpense rewrites a living expense through its dedicated route.
func (c *Client) UpdateLivingExpense(ctx context.Context, le core.LivingExpense) error {
	req := sheets.LivingExpenseRequest{
		Action:        sheets.ActionUpdateLivingExpense,
		WireRecurring: sheets.RecurringToWire(le.Recurring),
	}
	return c.mutate(ctx, "update living expense", PathLivingExpense, req)
}

func (c *Client) UpdateRecord(ctx context.Context, rec core.Record) error {
	if le, ok := rec.(core.LivingExpense); ok {
		return c.UpdateLivingExpense(ctx, le)
	}
	w, err := sheets.RecordToWire(rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	req := sheets.UpdateRequest{
		Action:     sheets.ActionUpdate,
		Collection: rec.Collection(),
		Record:     raw,
	}
	return c.mutate(ctx, "update record", PathUpdate, req)
}

func (c *Client) DeleteRecord(ctx context.Context, col core.Collection, id string) error {
	req := sheets.DeleteRequest{
		Action:     sheets.ActionDelete,
		Collection: col,
		ID:         id,
	}
	return c.mutate(ctx, "delete record", PathDelete, req)
}

func (c *Client) mutate(ctx context.Context, op, path string, payload any) error {
	status, body, err := c.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	_, err = sheets.CheckMutation(op, status, body)
	return err
}

var _ sheets.Backend = (*Client)(nil)
