package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
)

// Column positions written by this client. Tabs whose header row names the
// columns differently are read through headerAliases instead.
var (
	expenseColumns   = []string{"id", "date", "detail", "amount", "category", "memo", "payment"}
	incomeColumns    = []string{"id", "date", "detail", "amount"}
	recurringColumns = []string{"id", "detail", "amount", "day", "category", "payment", "done", "memo"}
)

var headerAliases = map[string]string{
	"id":       "id",
	"date":     "date",
	"日付":       "date",
	"detail":   "detail",
	"内容":       "detail",
	"項目":       "detail",
	"amount":   "amount",
	"金額":       "amount",
	"category": "category",
	"カテゴリ":     "category",
	"分類":       "category",
	"memo":     "memo",
	"メモ":       "memo",
	"備考":       "memo",
	"payment":  "payment",
	"支払方法":     "payment",
	"支払い":      "payment",
	"day":      "day",
	"引落日":      "day",
	"支払日":      "day",
	"done":     "done",
	"済":        "done",
	"支払済":      "done",
}

// columnMap resolves field names to column indexes from the header row,
// falling back to the written layout for anything the header lacks.
type columnMap map[string]int

func newColumnMap(header []any, layout []string) columnMap {
	m := make(columnMap, len(layout))
	for i, h := range toStrings(header) {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := headerAliases[key]; ok {
			if _, dup := m[field]; !dup {
				m[field] = i
			}
		}
	}
	for i, field := range layout {
		if _, ok := m[field]; !ok {
			m[field] = i
		}
	}
	return m
}

func (m columnMap) get(row []string, field string) string {
	idx, ok := m[field]
	if !ok {
		return ""
	}
	return strings.TrimSpace(safeGet(row, idx))
}

func parseExpenses(values [][]any) []core.Expense {
	if len(values) == 0 {
		return nil
	}
	cols := newColumnMap(values[0], expenseColumns)
	out := make([]core.Expense, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		id := cols.get(row, "id")
		if id == "" {
			continue
		}
		out = append(out, core.Expense{
			ID:       id,
			Date:     normalizeDate(cols.get(row, "date")),
			Detail:   cols.get(row, "detail"),
			Amount:   amountOf(cols.get(row, "amount")),
			Category: cols.get(row, "category"),
			Memo:     cols.get(row, "memo"),
			Payment:  cols.get(row, "payment"),
		})
	}
	return out
}

func parseIncomes(values [][]any) []core.Income {
	if len(values) == 0 {
		return nil
	}
	cols := newColumnMap(values[0], incomeColumns)
	out := make([]core.Income, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		id := cols.get(row, "id")
		if id == "" {
			continue
		}
		out = append(out, core.Income{
			ID:     id,
			Date:   normalizeDate(cols.get(row, "date")),
			Detail: cols.get(row, "detail"),
			Amount: amountOf(cols.get(row, "amount")),
		})
	}
	return out
}

// parseRecurring decodes fixed or living rows. Done markers are resolved
// against ref.
func parseRecurring(values [][]any, ref time.Time) []core.Recurring {
	if len(values) == 0 {
		return nil
	}
	cols := newColumnMap(values[0], recurringColumns)
	out := make([]core.Recurring, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		id := cols.get(row, "id")
		if id == "" {
			continue
		}
		out = append(out, core.Recurring{
			ID:       id,
			Detail:   cols.get(row, "detail"),
			Amount:   amountOf(cols.get(row, "amount")),
			Day:      dayOf(cols.get(row, "day")),
			Category: cols.get(row, "category"),
			Payment:  cols.get(row, "payment"),
			Settled:  core.DecodeSettledMarker(cols.get(row, "done"), ref),
			Memo:     cols.get(row, "memo"),
		})
	}
	return out
}

func expenseRow(e core.Expense) []any {
	return []any{e.ID, e.Date, e.Detail, e.Amount.String(), e.Category, e.Memo, e.Payment}
}

func incomeRow(i core.Income) []any {
	return []any{i.ID, i.Date, i.Detail, i.Amount.String()}
}

func recurringRow(r core.Recurring) []any {
	done := ""
	if r.Settled != nil {
		done = r.Settled.Marker()
	}
	return []any{r.ID, r.Detail, r.Amount.String(), strconv.Itoa(r.Day), r.Category, r.Payment, done, r.Memo}
}

// rowOfID scans an id column (header included) and returns the 1-based
// row number, or 0.
func rowOfID(values [][]any, id string) int {
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if cell(row, 0) == id {
			return i + 1
		}
	}
	return 0
}

// amountOf is lenient: unreadable cells count as zero.
func amountOf(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func dayOf(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int(math.Floor(f))
}

// normalizeDate rewrites dates the sheet formatted as 2026-2-3 into the
// record layout; anything unparseable is kept verbatim.
func normalizeDate(s string) string {
	t, err := core.ParseDate(s)
	if err != nil {
		return s
	}
	return core.FormatDate(t)
}

func cell(row []any, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(toString(row[i]))
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = toString(v)
	}
	return out
}

func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
