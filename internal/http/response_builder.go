// Package http is the ledger proxy: a thin JSON API in front of a
// sheets.Backend.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

// Envelope is the body of every API response.
type Envelope struct {
	OK       bool                `json:"ok"`
	Data     any                 `json:"data,omitempty"`
	RecordID string              `json:"recordId,omitempty"`
	Expense  *sheets.WireExpense `json:"expense,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// ResponseBuilder assembles an envelope, its status and extra headers.
type ResponseBuilder struct {
	status  int
	env     Envelope
	headers map[string]string
}

// NewResponse starts a successful 200 response.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		status:  http.StatusOK,
		env:     Envelope{OK: true},
		headers: make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.status = code
	return b
}

func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.env.Data = v
	return b
}

func (b *ResponseBuilder) RecordID(id string) *ResponseBuilder {
	b.env.RecordID = id
	return b
}

// Expense attaches the stored expense so clients can skip id reconciliation.
func (b *ResponseBuilder) Expense(e core.Expense) *ResponseBuilder {
	w := sheets.ExpenseToWire(e)
	b.env.Expense = &w
	return b
}

func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

// Fail turns the response into {ok:false, error:msg}.
func (b *ResponseBuilder) Fail(code int, msg string) *ResponseBuilder {
	b.status = code
	b.env = Envelope{OK: false, Error: msg}
	return b
}

// Write sends the response.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, b.status, b.env)
}

// Body encodes the envelope without writing it.
func (b *ResponseBuilder) Body() ([]byte, error) {
	return json.Marshal(b.env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Encode response failed", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"ok":false,"error":"internal error"}`)
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func BadRequestError(msg string) *ResponseBuilder {
	return NewResponse().Fail(http.StatusBadRequest, msg)
}

func MethodNotAllowedError(allowed string) *ResponseBuilder {
	return NewResponse().Fail(http.StatusMethodNotAllowed, "method not allowed").Header("Allow", allowed)
}

func TooManyRequestsError() *ResponseBuilder {
	return NewResponse().Fail(http.StatusTooManyRequests, "rate limit exceeded")
}

// ErrorResponse maps a backend or validation error to a status:
// configuration 500, validation 400, missing record 404, transport and
// semantic failures 502.
func ErrorResponse(err error) *ResponseBuilder {
	var (
		cfgErr   *sheets.ConfigError
		failErr  *sheets.FailureError
		transErr *sheets.TransportError
	)
	switch {
	case errors.As(err, &cfgErr):
		return NewResponse().Fail(http.StatusInternalServerError, "upstream not configured")
	case isValidation(err):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrNotFound):
		return NewResponse().Fail(http.StatusNotFound, err.Error())
	case errors.As(err, &failErr):
		return NewResponse().Fail(http.StatusBadGateway, failErr.Reason)
	case errors.As(err, &transErr):
		return NewResponse().Fail(http.StatusBadGateway, "upstream unavailable")
	}
	return NewResponse().Fail(http.StatusInternalServerError, "internal error")
}

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidDay,
	core.ErrInvalidAmount,
	core.ErrEmptyDetail,
	core.ErrDetailTooLong,
	core.ErrEmptyID,
	core.ErrUnknownCollection,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
