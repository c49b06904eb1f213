package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/core"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/sheets"
)

func (s *Server) backendContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), backendTimeout)
}

// handleReadAll serves {ok, data:{expenses, incomes, fixedExpenses,
// livingExpenses}}, cached briefly.
func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logfields.FromContext(ctx)

	if body, ok := s.readAll.Get(readAllKey); ok {
		logger.DebugContext(ctx, "Read-all cache hit", logfields.FieldOperation, logfields.OpLoad)
		writeRaw(w, http.StatusOK, body)
		return
	}

	gen := s.gen.Load()
	v, err, shared := s.reads.Do(readAllKey, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backendTimeout)
		defer cancel()
		l, err := s.backend.ReadAll(bctx)
		if err != nil {
			return nil, err
		}
		return NewResponse().Data(sheets.LedgerToWire(l.Normalized())).Body()
	})
	if err != nil {
		s.logFailure(ctx, logfields.OpLoad, "", err)
		ErrorResponse(err).Write(w)
		return
	}
	body := v.([]byte)
	if s.gen.Load() == gen {
		s.readAll.Set(readAllKey, body)
	}
	logger.DebugContext(ctx, "Read-all served from backend",
		logfields.FieldOperation, logfields.OpLoad,
		"shared", shared)
	writeRaw(w, http.StatusOK, body)
}

// handleSubmit creates an expense: {date, detail, amount, category, memo,
// payment} -> {ok, recordId, expense}.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req sheets.ExpenseRequest
	if err := DecodeBody(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sanitizeExpense(&req)
	draft := req.Draft()
	if err := draft.Validate(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.backendContext(r)
	defer cancel()
	exp, err := s.backend.CreateExpense(ctx, draft)
	if err != nil {
		s.logFailure(r.Context(), logfields.OpCreate, core.Expenses, err)
		ErrorResponse(err).Write(w)
		return
	}
	s.invalidate()

	logfields.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		logfields.FieldOperation, logfields.OpCreate,
		logfields.FieldCollection, core.Expenses,
		logfields.FieldRecordID, exp.ID,
		logfields.FieldAmount, exp.Amount.String())
	NewResponse().RecordID(exp.ID).Expense(exp).Write(w)
}

// handleSubscription adds a fixed or living expense template.
func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	var req sheets.SubscriptionRequest
	if err := DecodeBody(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !actionMatches(req.Action, sheets.ActionAddSubscription) {
		BadRequestError("unexpected action " + req.Action).Write(w)
		return
	}
	col, err := sheets.CollectionOfKind(req.Kind)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sanitizeRecurring(&req.WireRecurring)
	rec := req.WireRecurring.Core(s.now())
	if err := rec.Validate(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := s.backendContext(r)
	defer cancel()
	created, err := s.backend.CreateRecurring(ctx, col, rec)
	if err != nil {
		s.logFailure(r.Context(), logfields.OpCreate, col, err)
		ErrorResponse(err).Write(w)
		return
	}
	s.invalidate()

	logfields.FromContext(r.Context()).InfoContext(r.Context(), "Recurring expense created",
		logfields.FieldOperation, logfields.OpCreate,
		logfields.FieldCollection, col,
		logfields.FieldRecordID, created.ID)
	NewResponse().RecordID(created.ID).Write(w)
}

// handleLivingExpense rewrites one living expense, usually to move its
// settled period.
func (s *Server) handleLivingExpense(w http.ResponseWriter, r *http.Request) {
	var req sheets.LivingExpenseRequest
	if err := DecodeBody(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !actionMatches(req.Action, sheets.ActionUpdateLivingExpense) {
		BadRequestError("unexpected action " + req.Action).Write(w)
		return
	}
	sanitizeRecurring(&req.WireRecurring)
	rec := core.LivingExpense{Recurring: req.WireRecurring.Core(s.now())}
	if err := validateRecord(rec); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.mutate(w, r, logfields.OpUpdate, core.LivingExpenses, rec.ID, func(ctx context.Context) error {
		return s.backend.UpdateRecord(ctx, rec)
	})
}

// handleUpdate replaces a record of any collection.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req sheets.UpdateRequest
	if err := DecodeBody(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !actionMatches(req.Action, sheets.ActionUpdate) {
		BadRequestError("unexpected action " + req.Action).Write(w)
		return
	}
	col, err := core.ParseCollection(string(req.Collection))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if len(req.Record) == 0 {
		BadRequestError("record is required").Write(w)
		return
	}
	rec, err := sheets.DecodeRecord(col, req.Record, s.now())
	if err != nil {
		BadRequestError("invalid record: " + err.Error()).Write(w)
		return
	}
	if err := validateRecord(rec); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.mutate(w, r, logfields.OpUpdate, col, rec.RecordID(), func(ctx context.Context) error {
		return s.backend.UpdateRecord(ctx, rec)
	})
}

// handleDelete removes a record by collection and id.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req sheets.DeleteRequest
	if err := DecodeBody(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !actionMatches(req.Action, sheets.ActionDelete) {
		BadRequestError("unexpected action " + req.Action).Write(w)
		return
	}
	col, err := core.ParseCollection(string(req.Collection))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id := sanitizeInput(req.ID)
	if id == "" {
		BadRequestError(core.ErrEmptyID.Error()).Write(w)
		return
	}
	s.mutate(w, r, logfields.OpDelete, col, id, func(ctx context.Context) error {
		return s.backend.DeleteRecord(ctx, col, id)
	})
}

// mutate runs a confirmed-or-error backend write and answers {ok:true}.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op string, col core.Collection, id string, call func(context.Context) error) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if err := call(ctx); err != nil {
		s.logFailure(r.Context(), op, col, err)
		ErrorResponse(err).Write(w)
		return
	}
	s.invalidate()
	logfields.FromContext(r.Context()).InfoContext(r.Context(), "Record mutated",
		logfields.FieldOperation, op,
		logfields.FieldCollection, col,
		logfields.FieldRecordID, id)
	NewResponse().Write(w)
}

// actionMatches accepts a missing action; the path already names it.
func actionMatches(got, want string) bool {
	got = strings.TrimSpace(got)
	return got == "" || got == want
}

func validateRecord(rec core.Record) error {
	if strings.TrimSpace(rec.RecordID()) == "" {
		return core.ErrEmptyID
	}
	switch v := rec.(type) {
	case core.Expense:
		return v.Validate()
	case core.Income:
		return v.Validate()
	case core.FixedExpense:
		return v.Validate()
	case core.LivingExpense:
		return v.Validate()
	}
	return core.ErrUnknownCollection
}

func (s *Server) logFailure(ctx context.Context, op string, col core.Collection, err error) {
	logger := logfields.FromContext(ctx)
	kind := logfields.ErrorTypeInternal
	var (
		cfgErr   *sheets.ConfigError
		failErr  *sheets.FailureError
		transErr *sheets.TransportError
	)
	switch {
	case errors.As(err, &cfgErr):
		kind = logfields.ErrorTypeConfiguration
	case isValidation(err), errors.Is(err, core.ErrNotFound):
		kind = logfields.ErrorTypeValidation
	case errors.As(err, &failErr):
		kind = logfields.ErrorTypeFailure
	case errors.As(err, &transErr):
		kind = logfields.ErrorTypeTransport
	}
	args := []any{
		logfields.FieldOperation, op,
		logfields.FieldError, err,
		"error_type", kind,
	}
	if col != "" {
		args = append(args, logfields.FieldCollection, col)
	}
	if kind == logfields.ErrorTypeValidation {
		logger.WarnContext(ctx, "Backend rejected request", args...)
		return
	}
	logger.ErrorContext(ctx, "Backend call failed", args...)
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// configured is implemented by backends that can be missing settings.
type configured interface {
	Configured() bool
}

// handleReady reports not ready when the backend lacks configuration.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"backend": "ok"}
	status, code := "ready", http.StatusOK
	switch b := s.backend.(type) {
	case nil:
		checks["backend"] = "missing"
		status, code = "not_ready", http.StatusServiceUnavailable
	case configured:
		if !b.Configured() {
			checks["backend"] = "not_configured"
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	hits, misses := s.readAll.Stats()
	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"cache":     map[string]any{"entries": s.readAll.Size(), "hits": hits, "misses": misses},
		"rateLimit": map[string]any{"clients": s.limiter.ActiveClients(), "rejected": s.limiter.Hits()},
		"security":  s.detector.Metrics(),
		"requests":  s.tracer.Metrics(),
	})
}
