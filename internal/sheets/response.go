package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/core"
)

// Envelope is the common response shape of the proxy and the web app.
type Envelope struct {
	OK       json.RawMessage `json:"ok"`
	Data     json.RawMessage `json:"data,omitempty"`
	RecordID FlexString      `json:"recordId,omitempty"`
	ID       FlexString      `json:"id,omitempty"`
	Expense  json.RawMessage `json:"expense,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Succeeded reports whether ok is truthy: true, a non-zero number or a
// non-empty string other than "false".
func (e Envelope) Succeeded() bool {
	raw := bytes.TrimSpace(e.OK)
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "0"
	}
	return false
}

func (e Envelope) reason(fallback string) string {
	if e.Error != "" {
		return e.Error
	}
	return fallback
}

// ParseEnvelope classifies a raw HTTP exchange. Error statuses and
// non-JSON bodies become TransportError, a falsy ok becomes FailureError.
func ParseEnvelope(op string, status int, body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &TransportError{Op: op, Status: status, Snippet: Snippet(body), Err: fmt.Errorf("response is not JSON: %w", err)}
	}
	if status < 200 || status >= 300 {
		return env, &TransportError{Op: op, Status: status, Snippet: Snippet(body), Err: fmt.Errorf("%s", env.reason(http.StatusText(status)))}
	}
	if !env.Succeeded() {
		return env, &FailureError{Op: op, Reason: env.reason("ok is not true"), Payload: json.RawMessage(body)}
	}
	return env, nil
}

// DecodeReadAll validates a read-all response and converts it. data must
// be an object whose collection keys are absent, null or arrays. ref
// resolves relative done markers.
func DecodeReadAll(status int, body []byte, ref time.Time) (core.Ledger, error) {
	const op = "read all"
	env, err := ParseEnvelope(op, status, body)
	if err != nil {
		return core.Ledger{}, err
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		return core.Ledger{}, &FailureError{Op: op, Reason: "data is not an object", Payload: json.RawMessage(body)}
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return core.Ledger{}, &FailureError{Op: op, Reason: err.Error(), Payload: json.RawMessage(body)}
	}
	for _, c := range core.Collections() {
		raw := bytes.TrimSpace(shape[string(c)])
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '[' {
			continue
		}
		return core.Ledger{}, &FailureError{Op: op, Reason: fmt.Sprintf("%s is not an array", c), Payload: json.RawMessage(body)}
	}

	var w WireLedger
	if err := json.Unmarshal(data, &w); err != nil {
		return core.Ledger{}, &FailureError{Op: op, Reason: err.Error(), Payload: json.RawMessage(body)}
	}
	return w.Core(ref), nil
}

// ReconcileCreatedExpense turns a create-expense response into the stored
// expense. A full expense object in the response is used as is; otherwise
// the returned recordId or id is merged with the submitted draft.
func ReconcileCreatedExpense(d core.ExpenseDraft, status int, body []byte) (core.Expense, error) {
	const op = "create expense"
	env, err := ParseEnvelope(op, status, body)
	if err != nil {
		return core.Expense{}, err
	}

	if raw := bytes.TrimSpace(env.Expense); len(raw) > 0 && raw[0] == '{' {
		var w WireExpense
		if err := json.Unmarshal(raw, &w); err != nil {
			return core.Expense{}, &FailureError{Op: op, Reason: "unreadable expense: " + err.Error(), Payload: json.RawMessage(body)}
		}
		if strings.TrimSpace(string(w.ID)) == "" {
			return core.Expense{}, &FailureError{Op: op, Reason: "returned expense has no id", Payload: json.RawMessage(body)}
		}
		return w.Core(), nil
	}

	for _, id := range []FlexString{env.RecordID, env.ID} {
		if s := strings.TrimSpace(string(id)); s != "" {
			return d.WithID(s), nil
		}
	}
	return core.Expense{}, &FailureError{Op: op, Reason: "no record id in response", Payload: json.RawMessage(body)}
}

// CheckMutation validates the response of an update, delete or
// subscription call and returns the envelope for callers that need an id.
func CheckMutation(op string, status int, body []byte) (Envelope, error) {
	return ParseEnvelope(op, status, body)
}
