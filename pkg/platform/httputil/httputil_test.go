package httputil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "reconciler/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("validation error includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "either email or phoneNumber must be provided"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "validation_error" {
			t.Fatalf("expected error code validation_error, got %q", body["error"])
		}
		if body["error_description"] != "either email or phoneNumber must be provided" {
			t.Fatalf("unexpected error_description %q", body["error_description"])
		}
	})

	t.Run("uncoded error is treated as internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

type pingRequest struct {
	Name string `json:"name"`
}

func (p *pingRequest) Validate() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	decode := func(body string) (*httptest.ResponseRecorder, *pingRequest, bool) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/ping", strings.NewReader(body))
		req, ok := DecodeAndPrepare[pingRequest](w, r, logger, context.Background(), "req-1")
		return w, req, ok
	}

	t.Run("valid body", func(t *testing.T) {
		_, req, ok := decode(`{"name":"alice"}`)
		if !ok || req.Name != "alice" {
			t.Fatalf("expected decoded request, got ok=%v req=%+v", ok, req)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		w, _, ok := decode(``)
		if ok || w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty body, got %d", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w, _, ok := decode(`{"name":`)
		if ok || w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for malformed body, got %d", w.Code)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		w, _, ok := decode(`{}`)
		if ok || w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid body, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "name is required") {
			t.Fatalf("expected validation description, got %s", w.Body.String())
		}
	})
}
