package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/memoria/internal/auth"
	"github.com/hitoshi/memoria/internal/middleware"
	"github.com/hitoshi/memoria/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(state string) string
	CompleteLogin(ctx context.Context, credential string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// CookieEncoder はセッションIDを署名付きCookie値に変換する。auth.SessionStoreが満たす。
type CookieEncoder interface {
	EncodeCookie(sessionID string) string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string
	SessionCookie auth.CookiePolicy
}

// AuthHandler はログイン・ログアウト関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies CookieEncoder
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies CookieEncoder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google, GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteError(w, r, http.StatusInternalServerError, model.NewInternalError(), err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, oauthStateMaxAge))

	http.Redirect(w, r, h.service.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
//
// 失敗時はセッションを作成せず、FRONTEND_URL/login?error=auth_failed へリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// stateクッキーは結果にかかわらず削除する
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)
	http.SetCookie(w, h.stateCookie("", -1))

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	if cookieErr != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.redirectFailure(w, r)
		return
	}

	// 2. 上流IdPがエラーを返した場合（同意拒否など）
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Warn("oauth provider returned error", slog.String("error", errParam))
		h.redirectFailure(w, r)
		return
	}

	// 3. ログイン処理
	session, _, err := h.service.CompleteLogin(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		slog.Error("login failed", slog.String("error", err.Error()))
		h.redirectFailure(w, r)
		return
	}

	// 4. セッションCookieを設定してフロントエンドへ
	http.SetCookie(w, h.config.SessionCookie.SessionCookie(h.cookies.EncodeCookie(session.ID)))
	http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
}

// firebaseSessionRequest はFirebase IDトークンからセッションを作成するリクエストのボディ。
type firebaseSessionRequest struct {
	IDToken string `json:"id_token"`
}

// FirebaseSession はクライアントSDKが取得したIDトークンを検証してセッションを発行する。
// POST /auth/firebase/session
func (h *AuthHandler) FirebaseSession(w http.ResponseWriter, r *http.Request) {
	var req firebaseSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, _, err := h.service.CompleteLogin(r.Context(), req.IDToken)
	if err != nil {
		slog.Error("login failed", slog.String("error", err.Error()))
		middleware.WriteError(w, r, http.StatusUnauthorized, model.NewAuthFailedError(), err)
		return
	}

	http.SetCookie(w, h.config.SessionCookie.SessionCookie(h.cookies.EncodeCookie(session.ID)))
	w.WriteHeader(http.StatusNoContent)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, h.config.SessionCookie.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

// principalResponse は現在のログインユーザーのAPIレスポンス。
type principalResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if !p.Authenticated() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, principalResponse{
		ID:          p.UserID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		PhotoURL:    p.PhotoURL,
	})
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	q := url.Values{"error": {"auth_failed"}}
	http.Redirect(w, r, h.config.FrontendURL+"/login?"+q.Encode(), http.StatusTemporaryRedirect)
}

// stateCookie はOAuth state用のCookieを生成する。
// IdPからのトップレベル遷移で送信されるようSameSite=Laxにする。
func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.SessionCookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
