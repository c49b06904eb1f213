package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/sheets"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"config", fmt.Errorf("read: %w", &sheets.ConfigError{Setting: "UPSTREAM_URL"}), http.StatusInternalServerError, "upstream not configured"},
		{"validation", fmt.Errorf("expense: %w", core.ErrInvalidAmount), http.StatusBadRequest, "expense: invalid amount"},
		{"not found", fmt.Errorf("x: %w", core.ErrNotFound), http.StatusNotFound, "x: record not found"},
		{"failure", &sheets.FailureError{Op: "delete record", Reason: "row locked"}, http.StatusBadGateway, "row locked"},
		{"transport", &sheets.TransportError{Op: "read all", Status: 503}, http.StatusBadGateway, "upstream unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ErrorResponse(tt.err).Write(rr)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var env Envelope
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatal(err)
			}
			if env.OK || env.Error != tt.wantError {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
}

func TestResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewResponse().RecordID("r-1").Header("X-Extra", "1").Write(rr)

	if rr.Code != http.StatusOK || rr.Header().Get("X-Extra") != "1" {
		t.Fatalf("status=%d headers=%v", rr.Code, rr.Header())
	}
	if got := rr.Body.String(); got != `{"ok":true,"recordId":"r-1"}` {
		t.Errorf("body = %s", got)
	}

	rr = httptest.NewRecorder()
	MethodNotAllowedError(http.MethodPost).Write(rr)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPost {
		t.Errorf("405: status=%d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
}
