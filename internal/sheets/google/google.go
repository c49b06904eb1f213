package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kakeibo/internal/core"
	ports "kakeibo/internal/sheets"
)

// Tabs names the sheet of each collection.
type Tabs struct {
	Expenses       string
	Incomes        string
	FixedExpenses  string
	LivingExpenses string
}

// DefaultTabs are the tab names of the household spreadsheet template.
func DefaultTabs() Tabs {
	return Tabs{
		Expenses:       "支出",
		Incomes:        "収入",
		FixedExpenses:  "固定費",
		LivingExpenses: "生活費",
	}
}

func (t Tabs) of(c core.Collection) (string, error) {
	switch c {
	case core.Expenses:
		return t.Expenses, nil
	case core.Incomes:
		return t.Incomes, nil
	case core.FixedExpenses:
		return t.FixedExpenses, nil
	case core.LivingExpenses:
		return t.LivingExpenses, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownCollection, c)
}

// Client reads and writes the four ledger tabs directly through the
// Sheets API. Row 1 of every tab is a header; records are located by the
// id column.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabs          Tabs
	now           func() time.Time
	newID         func() string

	mu                 sync.Mutex
	sheetIDs           map[string]int64
	rowIndex           map[core.Collection]map[string]int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.Backend = (*Client)(nil)

// Config carries what New needs. A configured OAuth token wins; otherwise
// exactly one of CredentialsJSON and CredentialsFile should be set, and
// with neither GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	OAuth           OAuthClient
	Tabs            Tabs
}

func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, &ports.ConfigError{Setting: "GOOGLE_SPREADSHEET_ID"}
	}
	if len(opts) == 0 && cfg.OAuth.enabled() {
		ts, err := cfg.OAuth.TokenSource(ctx)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials", "token_file", cfg.OAuth.TokenFile)
		opts = []goption.ClientOption{goption.WithTokenSource(ts)}
	}
	if len(opts) == 0 {
		creds, err := readCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.Tabs), nil
}

// NewWithService wraps an existing service. Empty tab names take defaults.
func NewWithService(svc *gsheet.Service, spreadsheetID string, tabs Tabs) *Client {
	def := DefaultTabs()
	if tabs.Expenses == "" {
		tabs.Expenses = def.Expenses
	}
	if tabs.Incomes == "" {
		tabs.Incomes = def.Incomes
	}
	if tabs.FixedExpenses == "" {
		tabs.FixedExpenses = def.FixedExpenses
	}
	if tabs.LivingExpenses == "" {
		tabs.LivingExpenses = def.LivingExpenses
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		tabs:               tabs,
		now:                time.Now,
		newID:              uuid.NewString,
		cacheValidDuration: 2 * time.Minute,
	}
}

// WithClock sets the reference time for decoding relative done markers.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func readCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	file := strings.TrimSpace(cfg.CredentialsFile)
	if cfg.CredentialsJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(cfg.CredentialsJSON), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	}
	return nil, &ports.ConfigError{Setting: "GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE"}
}

// NewHTTPClient returns a pooled client suited to the Sheets API, for use
// with option.WithHTTPClient.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (c *Client) ready() error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return nil
}

// ReadAll fetches the four tabs in one batch request.
func (c *Client) ReadAll(ctx context.Context) (core.Ledger, error) {
	if err := c.ready(); err != nil {
		return core.Ledger{}, err
	}
	ranges := []string{
		c.tabs.Expenses + "!A:G",
		c.tabs.Incomes + "!A:D",
		c.tabs.FixedExpenses + "!A:H",
		c.tabs.LivingExpenses + "!A:H",
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return core.Ledger{}, &ports.TransportError{Op: "read all", Err: err}
	}
	if len(resp.ValueRanges) != len(ranges) {
		return core.Ledger{}, &ports.FailureError{Op: "read all", Reason: fmt.Sprintf("expected %d ranges, got %d", len(ranges), len(resp.ValueRanges))}
	}

	ref := c.now()
	l := core.Ledger{
		Expenses: parseExpenses(resp.ValueRanges[0].Values),
		Incomes:  parseIncomes(resp.ValueRanges[1].Values),
	}
	for _, r := range parseRecurring(resp.ValueRanges[2].Values, ref) {
		l.FixedExpenses = append(l.FixedExpenses, core.FixedExpense{Recurring: r})
	}
	for _, r := range parseRecurring(resp.ValueRanges[3].Values, ref) {
		l.LivingExpenses = append(l.LivingExpenses, core.LivingExpense{Recurring: r})
	}

	c.indexRows(map[core.Collection][][]any{
		core.Expenses:       resp.ValueRanges[0].Values,
		core.Incomes:        resp.ValueRanges[1].Values,
		core.FixedExpenses:  resp.ValueRanges[2].Values,
		core.LivingExpenses: resp.ValueRanges[3].Values,
	})
	return l.Normalized(), nil
}

// CreateExpense appends a row with a fresh id.
func (c *Client) CreateExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validation failed: %w", err)
	}
	if err := c.ready(); err != nil {
		return core.Expense{}, err
	}
	e := d.WithID(c.newID())
	if err := c.appendRow(ctx, c.tabs.Expenses+"!A:G", expenseRow(e)); err != nil {
		return core.Expense{}, err
	}
	slog.InfoContext(ctx, "Expense appended to sheet", "id", e.ID, "sheet", c.tabs.Expenses)
	return e, nil
}

func (c *Client) CreateRecurring(ctx context.Context, col core.Collection, r core.Recurring) (core.Recurring, error) {
	if err := r.Validate(); err != nil {
		return core.Recurring{}, fmt.Errorf("validation failed: %w", err)
	}
	if _, err := ports.KindOf(col); err != nil {
		return core.Recurring{}, err
	}
	if err := c.ready(); err != nil {
		return core.Recurring{}, err
	}
	tab, _ := c.tabs.of(col)
	r.ID = c.newID()
	if err := c.appendRow(ctx, tab+"!A:H", recurringRow(r)); err != nil {
		return core.Recurring{}, err
	}
	return r, nil
}

func (c *Client) appendRow(ctx context.Context, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return &ports.TransportError{Op: "append " + rng, Err: err}
	}
	c.InvalidateRowCache()
	return nil
}

// UpdateRecord overwrites the row holding rec's id.
func (c *Client) UpdateRecord(ctx context.Context, rec core.Record) error {
	if err := c.ready(); err != nil {
		return err
	}
	col := rec.Collection()
	tab, err := c.tabs.of(col)
	if err != nil {
		return err
	}
	row, err := c.findRow(ctx, col, rec.RecordID())
	if err != nil {
		return err
	}

	var values []any
	var lastCol string
	switch r := rec.(type) {
	case core.Expense:
		values, lastCol = expenseRow(r), "G"
	case core.Income:
		values, lastCol = incomeRow(r), "D"
	case core.FixedExpense:
		values, lastCol = recurringRow(r.Recurring), "H"
	case core.LivingExpense:
		values, lastCol = recurringRow(r.Recurring), "H"
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", tab, row, lastCol, row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return &ports.TransportError{Op: "update " + rng, Err: err}
	}
	return nil
}

// DeleteRecord removes the row holding id.
func (c *Client) DeleteRecord(ctx context.Context, col core.Collection, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	tab, err := c.tabs.of(col)
	if err != nil {
		return err
	}
	row, err := c.findRow(ctx, col, id)
	if err != nil {
		return err
	}
	sheetID, err := c.sheetID(ctx, tab)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return &ports.TransportError{Op: "delete row", Err: err}
	}
	c.InvalidateRowCache()
	return nil
}

// findRow returns the 1-based row number of id, using the row index while
// it is fresh and re-reading the id column otherwise.
func (c *Client) findRow(ctx context.Context, col core.Collection, id string) (int, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		if row, ok := c.rowIndex[col][id]; ok {
			c.mu.Unlock()
			return row, nil
		}
	}
	c.mu.Unlock()

	tab, err := c.tabs.of(col)
	if err != nil {
		return 0, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, &ports.TransportError{Op: "read ids", Err: err}
	}
	row := rowOfID(resp.Values, id)
	if row == 0 {
		return 0, fmt.Errorf("%s %q: %w", col, id, core.ErrNotFound)
	}
	return row, nil
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	if id, ok := c.sheetIDs[title]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, &ports.TransportError{Op: "read sheet metadata", Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetIDs == nil {
		c.sheetIDs = make(map[string]int64)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok := c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", title)
	}
	return id, nil
}

func (c *Client) indexRows(values map[core.Collection][][]any) {
	idx := make(map[core.Collection]map[string]int, len(values))
	for col, rows := range values {
		m := make(map[string]int, len(rows))
		for i, row := range rows {
			if len(row) == 0 {
				continue
			}
			if id := cell(row, 0); id != "" {
				m[id] = i + 1
			}
		}
		idx[col] = m
	}
	c.mu.Lock()
	c.rowIndex = idx
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
}

// InvalidateRowCache forgets the id to row index; rows shift after
// appends and deletes.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.rowIndex = nil
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}
