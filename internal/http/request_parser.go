package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kakeibo/internal/sheets"
)

// maxBodyBytes bounds request bodies; a ledger record is a few hundred bytes.
const maxBodyBytes = 64 << 10

// DecodeBody reads a JSON object from r into dst. The error is suitable
// for the client.
func DecodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// sanitizeInput trims s and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitizeExpense(req *sheets.ExpenseRequest) {
	req.Date = sanitizeInput(req.Date)
	req.Detail = sanitizeInput(req.Detail)
	req.Category = sanitizeInput(req.Category)
	req.Memo = sanitizeInput(req.Memo)
	req.Payment = sanitizeInput(req.Payment)
}

func sanitizeRecurring(w *sheets.WireRecurring) {
	w.ID = sheets.FlexString(sanitizeInput(string(w.ID)))
	w.Detail = sanitizeInput(w.Detail)
	w.Category = sanitizeInput(w.Category)
	w.Payment = sanitizeInput(w.Payment)
	w.Done = sanitizeInput(w.Done)
	w.Memo = sanitizeInput(w.Memo)
}
