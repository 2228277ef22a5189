package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	var ctxID string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	headerID := w.Header().Get("X-Request-Id")
	if _, err := uuid.Parse(headerID); err != nil {
		t.Fatalf("X-Request-Id %q is not a UUID: %v", headerID, err)
	}
	if ctxID != headerID {
		t.Errorf("context ID = %q, header ID = %q", ctxID, headerID)
	}
}

// TestRequestIDMiddleware_PropagatesIncomingID は受信した有効なIDを引き継ぐことを検証する。
func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	incoming := uuid.NewString()
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", incoming)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != incoming {
		t.Errorf("X-Request-Id = %q, want %q", got, incoming)
	}
}

// TestRequestIDMiddleware_ReplacesInvalidID はUUIDでない受信IDを置き換えることを検証する。
func TestRequestIDMiddleware_ReplacesInvalidID(t *testing.T) {
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "<script>")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	got := w.Header().Get("X-Request-Id")
	if got == "<script>" {
		t.Fatal("invalid request ID should be replaced")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("X-Request-Id %q is not a UUID", got)
	}
}
