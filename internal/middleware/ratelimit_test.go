package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testRateLimiterConfig(generalBurst, loginBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		LoginRate:       0.1,
		LoginBurst:      loginBurst,
		CleanupInterval: 1 * time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// sessionRequest はセッションIDをコンテキストに持つリクエストを生成する。
func sessionRequest(method, path, sessionID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if sessionID != "" {
		req = req.WithContext(ContextWithSessionID(req.Context(), sessionID))
	}
	return req
}

// --- GeneralMiddleware ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 10))
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, sessionRequest(http.MethodGet, "/", "sess-1"))

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(http.MethodGet, "/", "sess-limit"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest(http.MethodGet, "/", "sess-limit"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter := w.Header().Get("Retry-After")
	sec, err := strconv.Atoi(retryAfter)
	if err != nil || sec < 1 {
		t.Errorf("Retry-After = %q, want positive integer", retryAfter)
	}
}

func TestRateLimitMiddleware_429ResponseIsJSON(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(http.MethodGet, "/", "sess-json"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest(http.MethodGet, "/", "sess-json"))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

// TestRateLimitMiddleware_IsolatesSessions はセッションごとに独立して制限されることを検証する。
func TestRateLimitMiddleware_IsolatesSessions(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(http.MethodGet, "/", "sess-a"))

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, sessionRequest(http.MethodGet, "/", "sess-a"))
	if wA.Code != http.StatusTooManyRequests {
		t.Errorf("sess-a second request: status = %d, want 429", wA.Code)
	}

	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, sessionRequest(http.MethodGet, "/", "sess-b"))
	if wB.Code != http.StatusOK {
		t.Errorf("sess-b first request: status = %d, want 200", wB.Code)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

// TestRateLimitMiddleware_NoSession_FallsBackToIP は未ログインのリクエストをIP単位で制限することを検証する。
func TestRateLimitMiddleware_NoSession_FallsBackToIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req1 := sessionRequest(http.MethodGet, "/", "")
	req1.RemoteAddr = "203.0.113.5:1111"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := sessionRequest(http.MethodGet, "/", "")
	req2.RemoteAddr = "203.0.113.5:2222"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("same IP second request: status = %d, want 429", w2.Code)
	}

	req3 := sessionRequest(http.MethodGet, "/", "")
	req3.RemoteAddr = "198.51.100.7:1111"
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w3.Code)
	}
}

// --- LoginMiddleware ---

func TestLoginRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(100, 2))
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want %q", got, "10")
	}
}

// TestLoginRateLimit_IndependentFromGeneralLimit はログイン制限が全般制限と独立していることを検証する。
func TestLoginRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 5))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	login := rl.LoginMiddleware()(okHandler())

	// 全般の枠を使い切る
	general.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	login.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusOK {
		t.Errorf("login status = %d, want 200", w.Code)
	}
	if rl.LoginLimiterCount() != 1 {
		t.Errorf("LoginLimiterCount = %d, want 1", rl.LoginLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig(5, 5)
	cfg.CleanupInterval = 50 * time.Millisecond

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), sessionRequest(http.MethodGet, "/", "sess-cleanup"))
	rl.LoginMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))

	if rl.GeneralLimiterCount() == 0 || rl.LoginLimiterCount() == 0 {
		t.Fatal("expected limiter entries")
	}

	// TTLはCleanupIntervalの2倍（100ms）。十分待てば削除される。
	time.Sleep(300 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("general entries after cleanup = %d, want 0", count)
	}
	if count := rl.LoginLimiterCount(); count != 0 {
		t.Errorf("login entries after cleanup = %d, want 0", count)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

// --- 設定値 ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.LoginRate == 0 {
		t.Error("LoginRate should not be 0")
	}
	if cfg.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", cfg.LoginBurst)
	}
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(60, 6)

	if cfg.GeneralRate != 1.0 {
		t.Errorf("GeneralRate = %f, want 1.0", cfg.GeneralRate)
	}
	if cfg.LoginRate != 0.1 {
		t.Errorf("LoginRate = %f, want 0.1", cfg.LoginRate)
	}
	if cfg.GeneralBurst != 60 || cfg.LoginBurst != 6 {
		t.Errorf("bursts = %d/%d, want 60/6", cfg.GeneralBurst, cfg.LoginBurst)
	}
}
