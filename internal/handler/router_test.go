package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/memoria/internal/auth"
	"github.com/hitoshi/memoria/internal/config"
	"github.com/hitoshi/memoria/internal/middleware"
	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/note"
)

// mockSessionStoreForRouter はCookie値 "<sessionID>.sig" を受け付けるセッションストア。
type mockSessionStoreForRouter struct {
	users map[string]*model.User // sessionID -> user
}

func (m *mockSessionStoreForRouter) DecodeCookie(value string) (string, bool) {
	id, ok := strings.CutSuffix(value, ".sig")
	return id, ok && id != ""
}

func (m *mockSessionStoreForRouter) Deserialize(ctx context.Context, sessionID string) (*model.User, error) {
	return m.users[sessionID], nil
}

func (m *mockSessionStoreForRouter) EncodeCookie(sessionID string) string {
	return sessionID + ".sig"
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(ctx context.Context) error { return m.err }

// panicSessionStore はCookieの検証中にpanicするセッションストア。
type panicSessionStore struct {
	mockSessionStoreForRouter
}

func (panicSessionStore) DecodeCookie(value string) (string, bool) {
	panic("session decoder exploded")
}

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
// セッション "alice-session" はユーザー1、"bob-session" はユーザー2に対応する。
func createTestRouter(t *testing.T, production bool, noteSvc NoteServiceInterface) http.Handler {
	t.Helper()
	return NewRouter(newTestRouterDeps(t, production, noteSvc))
}

// newTestRouterDeps はcreateTestRouterが使う依存関係を返す。個別のテストで差し替えられる。
func newTestRouterDeps(t *testing.T, production bool, noteSvc NoteServiceInterface) *RouterDeps {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	if noteSvc == nil {
		noteSvc = newMemNoteService()
	}

	cookie := auth.NewCookiePolicy(86400, production, production, "")
	return &RouterDeps{
		Sessions: &mockSessionStoreForRouter{users: map[string]*model.User{
			"alice-session": {ID: 1, DisplayName: "Alice"},
			"bob-session":   {ID: 2, DisplayName: "Bob"},
		}},
		Principal: middleware.PrincipalConfig{
			CookieName: auth.SessionCookieName,
			Env:        &middleware.RequestEnv{AppID: "memoria", FrontendURL: testFrontendURL, Production: production},
		},
		CORSAllowedOrigin: testFrontendURL,
		RateLimiter:       rl,
		HealthChecker:     mockPinger{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
		AuthService:     &mockAuthService{completeLoginFn: successfulLogin},
		AuthConfig:      AuthHandlerConfig{FrontendURL: testFrontendURL, SessionCookie: cookie},
		UserService:     &mockUserService{},
		NoteService:     noteSvc,
		ReminderService: &mockReminderService{},
		ContactService:  &mockContactService{},
	}
}

// memNoteService はユーザーごとにメモを保持するインメモリのNoteService。
type memNoteService struct {
	mockNoteService
	notes map[int64][]*model.Note
}

func newMemNoteService() *memNoteService {
	s := &memNoteService{notes: make(map[int64][]*model.Note)}
	s.listFn = func(ctx context.Context, userID int64) ([]*model.Note, error) {
		return s.notes[userID], nil
	}
	s.createFn = func(ctx context.Context, userID int64, in note.Input) (*model.Note, error) {
		n := &model.Note{ID: int64(len(s.notes[userID]) + 1), UserID: userID, Title: in.Title}
		s.notes[userID] = append(s.notes[userID], n)
		return n, nil
	}
	return s
}

func sessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{Name: auth.SessionCookieName, Value: sessionID + ".sig"}
}

func TestRouter_APIRequiresPrincipal(t *testing.T) {
	router := createTestRouter(t, false, nil)

	for _, cookie := range []*http.Cookie{
		nil,
		{Name: auth.SessionCookieName, Value: "alice-session"},        // 署名なし
		{Name: auth.SessionCookieName, Value: "unknown-session.sig"}, // 未知のセッション
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("cookie=%v: status = %d, want %d", cookie, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouter_NotesAreScopedToPrincipal(t *testing.T) {
	svc := newMemNoteService()
	svc.notes[1] = []*model.Note{{ID: 1, UserID: 1, Title: "alice note"}}
	router := createTestRouter(t, false, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.AddCookie(sessionCookie("bob-session"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "alice note") {
		t.Errorf("bob can see alice's notes: %s", w.Body.String())
	}
}

func TestRouter_StateChangingAPIRequiresCSRFToken(t *testing.T) {
	router := createTestRouter(t, false, nil)

	// トークンなし
	req := newJSONRequest(http.MethodPost, "/api/notes", `{"title":"t"}`)
	req.AddCookie(sessionCookie("alice-session"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("without token: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// トークン取得
	req = httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(sessionCookie("alice-session"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("csrf-token: status = %d, want %d", w.Code, http.StatusOK)
	}
	var tokenBody map[string]string
	if err := json.NewDecoder(w.Body).Decode(&tokenBody); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}
	token := tokenBody["token"]
	if token == "" {
		t.Fatal("expected csrf token")
	}

	// トークンあり
	req = newJSONRequest(http.MethodPost, "/api/notes", `{"title":"t"}`)
	req.AddCookie(sessionCookie("alice-session"))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("with token: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestRouter_AuthMeUsesPrincipalFromSession(t *testing.T) {
	router := createTestRouter(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(sessionCookie("alice-session"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body principalResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.ID != 1 || body.DisplayName != "Alice" {
		t.Errorf("unexpected principal: %+v", body)
	}
}

func TestRouter_LoginRoutes(t *testing.T) {
	router := createTestRouter(t, false, nil)

	for _, path := range []string{"/auth/google", "/auth/google/login"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("GET %s: status = %d, want %d", path, w.Code, http.StatusTemporaryRedirect)
		}
	}
}

func TestRouter_LoginRoutesFollowAuthMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     config.AuthMode
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"oauth2: google login", config.AuthModeOAuth2, http.MethodGet, "/auth/google", "", http.StatusTemporaryRedirect},
		{"oauth2: firebase session not registered", config.AuthModeOAuth2, http.MethodPost, "/auth/firebase/session", `{"id_token":"tok"}`, http.StatusNotFound},
		{"default mode is oauth2", "", http.MethodPost, "/auth/firebase/session", `{"id_token":"tok"}`, http.StatusNotFound},
		{"firebase: session", config.AuthModeFirebase, http.MethodPost, "/auth/firebase/session", `{"id_token":"tok"}`, http.StatusNoContent},
		{"firebase: google login not registered", config.AuthModeFirebase, http.MethodGet, "/auth/google", "", http.StatusNotFound},
		{"firebase: google callback not registered", config.AuthModeFirebase, http.MethodGet, "/auth/google/callback?code=tok&state=s", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestRouterDeps(t, false, nil)
			deps.AuthMode = tt.mode
			router := NewRouter(deps)

			var req *http.Request
			if tt.body != "" {
				req = newJSONRequest(tt.method, tt.path, tt.body)
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := createTestRouter(t, false, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# metrics") {
		t.Errorf("/metrics status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(mockPinger{err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_UnknownRouteReturnsJSON404(t *testing.T) {
	router := createTestRouter(t, false, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeNotFound {
		t.Errorf("code = %q, want %q", code, model.ErrCodeNotFound)
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	router := createTestRouter(t, false, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRouter_PanicReturns500WithoutDetailInProduction(t *testing.T) {
	svc := newMemNoteService()
	svc.listFn = func(ctx context.Context, userID int64) ([]*model.Note, error) {
		panic("secret internal state")
	}
	router := createTestRouter(t, true, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.AddCookie(sessionCookie("alice-session"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "secret internal state") {
		t.Errorf("production response leaks panic detail: %s", w.Body.String())
	}
}

// Principalミドルウェア内のpanicも最外周でJSONの500に変換され、detailは出さない。
func TestRouter_PanicBeforePrincipalReturnsJSON500(t *testing.T) {
	deps := newTestRouterDeps(t, false, nil)
	deps.Sessions = &panicSessionStore{}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.AddCookie(sessionCookie("alice-session"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "exploded") {
		t.Errorf("response leaks panic detail: %s", w.Body.String())
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInternal)
	}
}
