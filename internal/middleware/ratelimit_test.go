package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newLimitedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

// --- GeneralMiddleware のテスト ---

func TestGeneralMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		PostCreateRate:  1,
		PostCreateBurst: 10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newLimitedRequest("user-1"))

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestGeneralMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		PostCreateRate:  1,
		PostCreateBurst: 10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newLimitedRequest("user-rate-limit"))

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	// 3回目はレート制限に引っかかる
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("user-rate-limit"))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestGeneralMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		PostCreateRate:  1,
		PostCreateBurst: 10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 1回目は通る
	handler.ServeHTTP(httptest.NewRecorder(), newLimitedRequest("user-retry-after"))

	// 2回目は429になる
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest("user-retry-after"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	retryAfter := rec.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be present")
	}

	// Retry-Afterは数値（秒）であること
	retrySeconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", retryAfter)
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}
}

// TestGeneralMiddleware_IsolatesUserRateLimits はユーザーごとに独立した
// レートが適用されることを検証する。
func TestGeneralMiddleware_IsolatesUserRateLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		PostCreateRate:  1,
		PostCreateBurst: 10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// ユーザーAの1回目は通り、2回目は429
	handler.ServeHTTP(httptest.NewRecorder(), newLimitedRequest("user-A"))

	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, newLimitedRequest("user-A"))
	if recA.Code != http.StatusTooManyRequests {
		t.Errorf("user-A second request: status = %d, want 429", recA.Code)
	}

	// ユーザーBの1回目は通る（ユーザーAのレートに影響されない）
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, newLimitedRequest("user-B"))
	if recB.Code != http.StatusOK {
		t.Errorf("user-B first request: status = %d, want 200", recB.Code)
	}
}

func TestGeneralMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without user ID")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest(""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// --- PostCreationMiddleware のテスト ---

// TestPostCreationMiddleware_IndependentOfGeneralLimit は投稿作成レートが
// API全般レートと独立してカウントされることを検証する。
func TestPostCreationMiddleware_IndependentOfGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		PostCreateRate:  1,
		PostCreateBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	createHandler := rl.PostCreationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// 作成は1回で上限に達する
	createHandler.ServeHTTP(httptest.NewRecorder(), newLimitedRequest("user-1"))

	rec := httptest.NewRecorder()
	createHandler.ServeHTTP(rec, newLimitedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second create: status = %d, want 429", rec.Code)
	}

	// 作成上限に達していてもAPI全般は通る
	recGeneral := httptest.NewRecorder()
	generalHandler.ServeHTTP(recGeneral, newLimitedRequest("user-1"))
	if recGeneral.Code != http.StatusOK {
		t.Errorf("general request: status = %d, want 200", recGeneral.Code)
	}
}

func TestPostCreationMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.PostCreationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without user ID")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newLimitedRequest(""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestRateLimiter_LimiterCounts はユーザーごとのリミッターエントリが
// 種別ごとに独立して管理されることを検証する。
func TestRateLimiter_LimiterCounts(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	generalHandler.ServeHTTP(httptest.NewRecorder(), newLimitedRequest("user-1"))
	generalHandler.ServeHTTP(httptest.NewRecorder(), newLimitedRequest("user-2"))

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("general limiter count = %d, want 2", got)
	}
	if got := rl.PostCreateLimiterCount(); got != 0 {
		t.Errorf("post create limiter count = %d, want 0", got)
	}
}
