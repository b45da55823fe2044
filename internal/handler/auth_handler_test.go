package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/kakimono/internal/auth"
	"github.com/hitoshi/kakimono/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return &model.Session{ID: "session-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, errors.New("not found")
}

type mockLoginMetrics struct {
	successCount   int
	failureReasons []string
}

func (m *mockLoginMetrics) RecordLoginSuccess()              { m.successCount++ }
func (m *mockLoginMetrics) RecordLoginFailure(reason string) { m.failureReasons = append(m.failureReasons, reason) }

// --- compile-time interface checks ---
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ LoginMetrics = (*mockLoginMetrics)(nil)
var _ SessionCookieCodec = (*auth.CookieCodec)(nil)

func newTestAuthHandler(service *mockAuthService, metrics *mockLoginMetrics) (*AuthHandler, *auth.CookieCodec) {
	codec := auth.NewCookieCodec("test-secret")
	h := NewAuthHandler(service, codec, metrics, AuthHandlerConfig{
		ClientURL:     "http://localhost:3000",
		CookieSecure:  false,
		SessionMaxAge: 86400,
	})
	return h, codec
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

// TestLogin_RedirectsToProviderWithStateCookie はログイン開始時に
// stateがCookieへ保存され、認証URLへリダイレクトされることを検証する。
func TestLogin_RedirectsToProviderWithStateCookie(t *testing.T) {
	h, _ := newTestAuthHandler(&mockAuthService{}, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
	rec := httptest.NewRecorder()

	h.Login(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	stateCookie := findCookie(t, resp, "oauth_state")
	if stateCookie == nil {
		t.Fatal("expected oauth_state cookie")
	}
	if !stateCookie.HttpOnly {
		t.Error("expected state cookie to be HttpOnly")
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, "state="+stateCookie.Value) {
		t.Errorf("redirect URL %s does not carry state cookie value %s", location, stateCookie.Value)
	}
}

// TestCallback_Success_SetsSignedCookieAndRedirects はコールバック成功時に
// 署名付きセッションCookieが設定され、クライアントURLへリダイレクト
// されることを検証する。
func TestCallback_Success_SetsSignedCookieAndRedirects(t *testing.T) {
	service := &mockAuthService{
		handleCallbackFn: func(_ context.Context, code string) (*model.Session, error) {
			if code != "auth-code" {
				t.Errorf("code = %s, want auth-code", code)
			}
			return &model.Session{ID: "session-1", UserID: "user-1"}, nil
		},
	}
	metrics := &mockLoginMetrics{}
	h, codec := newTestAuthHandler(service, metrics)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=auth-code&state=valid-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "valid-state"})
	rec := httptest.NewRecorder()

	h.Callback(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("redirect = %s, want http://localhost:3000", location)
	}

	sessionCookie := findCookie(t, resp, "session_id")
	if sessionCookie == nil {
		t.Fatal("expected session_id cookie")
	}
	if !sessionCookie.HttpOnly {
		t.Error("expected session cookie to be HttpOnly")
	}

	// Cookie値は署名付きで、復号するとセッションIDに戻る
	sessionID, err := codec.Decode(sessionCookie.Value)
	if err != nil {
		t.Fatalf("session cookie value is not properly signed: %v", err)
	}
	if sessionID != "session-1" {
		t.Errorf("decoded session ID = %s, want session-1", sessionID)
	}

	if metrics.successCount != 1 {
		t.Errorf("login success count = %d, want 1", metrics.successCount)
	}
}

// TestCallback_Failures_RedirectToAuthFail はコールバックの各失敗経路が
// いずれもセッションCookieなしで /auth-fail へリダイレクトすることを検証する。
func TestCallback_Failures_RedirectToAuthFail(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		stateCookie string
		service     *mockAuthService
		wantReason  string
	}{
		{
			name:        "プロバイダーがエラーを返した",
			url:         "/auth/github/callback?error=access_denied",
			stateCookie: "valid-state",
			service:     &mockAuthService{},
			wantReason:  "provider_denied",
		},
		{
			name:        "stateが一致しない",
			url:         "/auth/github/callback?code=auth-code&state=forged-state",
			stateCookie: "valid-state",
			service:     &mockAuthService{},
			wantReason:  "state_mismatch",
		},
		{
			name:        "stateクエリがない",
			url:         "/auth/github/callback?code=auth-code",
			stateCookie: "valid-state",
			service:     &mockAuthService{},
			wantReason:  "state_mismatch",
		},
		{
			name:        "codeがない",
			url:         "/auth/github/callback?state=valid-state",
			stateCookie: "valid-state",
			service:     &mockAuthService{},
			wantReason:  "missing_code",
		},
		{
			name:        "コード交換または保存が失敗した",
			url:         "/auth/github/callback?code=auth-code&state=valid-state",
			stateCookie: "valid-state",
			service: &mockAuthService{
				handleCallbackFn: func(_ context.Context, _ string) (*model.Session, error) {
					return nil, errors.New("exchange failed")
				},
			},
			wantReason: "callback_failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &mockLoginMetrics{}
			h, _ := newTestAuthHandler(tc.service, metrics)

			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.stateCookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tc.stateCookie})
			}
			rec := httptest.NewRecorder()

			h.Callback(rec, req)
			resp := rec.Result()

			if resp.StatusCode != http.StatusTemporaryRedirect {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
			}
			if location := resp.Header.Get("Location"); location != "http://localhost:3000/auth-fail" {
				t.Errorf("redirect = %s, want http://localhost:3000/auth-fail", location)
			}

			// 失敗時にセッションCookieが設定されていないこと
			if c := findCookie(t, resp, "session_id"); c != nil {
				t.Error("session cookie must not be set on failure")
			}

			if len(metrics.failureReasons) != 1 || metrics.failureReasons[0] != tc.wantReason {
				t.Errorf("failure reasons = %v, want [%s]", metrics.failureReasons, tc.wantReason)
			}
		})
	}
}

// TestProfile_NoCookie_Returns401 はCookieなしのprofileリクエストが
// 401と {"message":"Unauthorized"} を返すことを検証する。
func TestProfile_NoCookie_Returns401(t *testing.T) {
	h, _ := newTestAuthHandler(&mockAuthService{}, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	rec := httptest.NewRecorder()

	h.Profile(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["message"] != "Unauthorized" {
		t.Errorf("message = %q, want Unauthorized", body["message"])
	}
}

// TestProfile_TamperedCookie_Returns401 は署名が不正なCookieが拒否されることを
// 検証する。サービス層には到達しない。
func TestProfile_TamperedCookie_Returns401(t *testing.T) {
	service := &mockAuthService{
		getCurrentUserFn: func(_ context.Context, _ string) (*model.User, error) {
			t.Error("service should not be called for tampered cookie")
			return nil, errors.New("unreachable")
		},
	}
	h, _ := newTestAuthHandler(service, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-1.deadbeef"})
	rec := httptest.NewRecorder()

	h.Profile(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestProfile_ExpiredSession_Returns401 はセッションが解決できない場合に
// 401を返すことを検証する。
func TestProfile_ExpiredSession_Returns401(t *testing.T) {
	service := &mockAuthService{
		getCurrentUserFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("session not found or expired")
		},
	}
	h, codec := newTestAuthHandler(service, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: codec.Encode("expired-session")})
	rec := httptest.NewRecorder()

	h.Profile(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestProfile_ValidSession_ReturnsUserInfo は有効なセッションでユーザー情報が
// 返ることを検証する。
func TestProfile_ValidSession_ReturnsUserInfo(t *testing.T) {
	service := &mockAuthService{
		getCurrentUserFn: func(_ context.Context, sessionID string) (*model.User, error) {
			if sessionID != "session-1" {
				t.Errorf("session ID = %s, want session-1", sessionID)
			}
			return &model.User{
				ID:          "user-1",
				DisplayName: "Taro Yamada",
				AvatarURL:   "https://avatars.example.com/u/12345",
			}, nil
		},
	}
	h, codec := newTestAuthHandler(service, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: codec.Encode("session-1")})
	rec := httptest.NewRecorder()

	h.Profile(rec, req)
	resp := rec.Result()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["id"] != "user-1" {
		t.Errorf("id = %s, want user-1", body["id"])
	}
	if body["display_name"] != "Taro Yamada" {
		t.Errorf("display_name = %s", body["display_name"])
	}
	if body["avatar_url"] != "https://avatars.example.com/u/12345" {
		t.Errorf("avatar_url = %s", body["avatar_url"])
	}
}

// TestLogout_DeletesSessionAndClearsCookie はログアウトでセッションが削除され
// Cookieがクリアされることを検証する。
func TestLogout_DeletesSessionAndClearsCookie(t *testing.T) {
	deletedSession := ""
	service := &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			deletedSession = sessionID
			return nil
		},
	}
	h, codec := newTestAuthHandler(service, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: codec.Encode("session-1")})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)
	resp := rec.Result()

	if deletedSession != "session-1" {
		t.Errorf("deleted session = %s, want session-1", deletedSession)
	}

	cleared := findCookie(t, resp, "session_id")
	if cleared == nil {
		t.Fatal("expected session cookie clear directive")
	}
	if cleared.MaxAge >= 0 {
		t.Errorf("expected negative MaxAge to clear cookie, got %d", cleared.MaxAge)
	}

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("redirect = %s, want http://localhost:3000", location)
	}
}

// TestLogout_StorageError_StillClearsCookie はセッション削除に失敗しても
// Cookieがクリアされることを検証する。
func TestLogout_StorageError_StillClearsCookie(t *testing.T) {
	service := &mockAuthService{
		logoutFn: func(_ context.Context, _ string) error {
			return errors.New("db down")
		},
	}
	h, codec := newTestAuthHandler(service, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: codec.Encode("session-1")})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)
	resp := rec.Result()

	cleared := findCookie(t, resp, "session_id")
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Error("expected session cookie to be cleared even on storage error")
	}
}

// TestLogout_NoCookie_RedirectsWithoutError はCookieなしのログアウトも
// エラーにならずリダイレクトされることを検証する。
func TestLogout_NoCookie_RedirectsWithoutError(t *testing.T) {
	h, _ := newTestAuthHandler(&mockAuthService{}, &mockLoginMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
}
