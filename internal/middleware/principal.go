// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/memoria/internal/metrics"
	"github.com/hitoshi/memoria/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	sessionIDContextKey = contextKey("session_id")
	envContextKey       = contextKey("request_env")
	requestIDContextKey = contextKey("request_id")
)

// RequestEnv は起動時に1回だけ構築され、全リクエストで共有される読み取り専用の環境情報。
// ハンドラーはプロセス環境を直接読まず、これを参照する。
type RequestEnv struct {
	AppID         string
	FrontendURL   string
	SigningSecret string
	Production    bool
}

// SessionResolver はCookie値からローカルユーザーを復元する。auth.SessionStoreが満たす。
type SessionResolver interface {
	DecodeCookie(value string) (string, bool)
	Deserialize(ctx context.Context, sessionID string) (*model.User, error)
}

// PrincipalConfig はPrincipalミドルウェアの設定。
type PrincipalConfig struct {
	CookieName   string
	StoreTimeout time.Duration
	Env          *RequestEnv
	Metrics      metrics.MetricsCollector
}

// NewPrincipalMiddleware はセッションCookieからPrincipalを復元し、
// RequestEnvとともにリクエストコンテキストへ注入するミドルウェアを返す。
// 復元できない場合は未認証（nil）を注入するだけで、リクエストを拒否しない。
// セッションストアの障害も未認証として扱う。
func NewPrincipalMiddleware(sessions SessionResolver, config PrincipalConfig) func(next http.Handler) http.Handler {
	if config.Env == nil {
		config.Env = &RequestEnv{}
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), envContextKey, config.Env)

			principal, sessionID := resolvePrincipal(ctx, r, sessions, config)
			ctx = context.WithValue(ctx, principalContextKey, principal)
			if sessionID != "" {
				ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolvePrincipal(ctx context.Context, r *http.Request, sessions SessionResolver, config PrincipalConfig) (*model.Principal, string) {
	cookie, err := r.Cookie(config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ""
	}

	sessionID, ok := sessions.DecodeCookie(cookie.Value)
	if !ok {
		config.Metrics.RecordSessionLookup(metrics.SessionInvalid)
		return nil, ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	user, err := sessions.Deserialize(lookupCtx, sessionID)
	if err != nil {
		config.Metrics.RecordSessionLookup(metrics.SessionError)
		slog.Warn("session lookup failed, treating request as unauthenticated",
			slog.String("error", err.Error()),
		)
		return nil, sessionID
	}
	if user == nil {
		config.Metrics.RecordSessionLookup(metrics.SessionMiss)
		return nil, sessionID
	}

	config.Metrics.RecordSessionLookup(metrics.SessionHit)
	return model.NewPrincipal(user), sessionID
}

// RequirePrincipal は未認証リクエストに401を返すミドルウェア。
// NewPrincipalMiddlewareの後に配置する。
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Authenticated() {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext はリクエストコンテキストからPrincipalを取得する。
// 未認証の場合はnilを返す。
func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalContextKey).(*model.Principal)
	return p
}

// UserIDFromContext は認証済みユーザーのIDを返す。未認証の場合はfalseを返す。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	p := PrincipalFromContext(ctx)
	if !p.Authenticated() {
		return 0, false
	}
	return p.UserID, true
}

// SessionIDFromContext は署名検証済みのセッションIDを返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// EnvFromContext はリクエストコンテキストからRequestEnvを取得する。
// ミドルウェアを通過していない場合は空のRequestEnvを返す。
func EnvFromContext(ctx context.Context) *RequestEnv {
	if env, ok := requestEnv(ctx); ok {
		return env
	}
	return &RequestEnv{}
}

// requestEnv はPrincipalミドルウェアが注入したRequestEnvを返す。
// 注入前（最外周のミドルウェア）ではokがfalseになる。
func requestEnv(ctx context.Context) (*RequestEnv, bool) {
	env, ok := ctx.Value(envContextKey).(*RequestEnv)
	return env, ok && env != nil
}

// ContextWithPrincipal はコンテキストにPrincipalを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// ContextWithEnv はコンテキストにRequestEnvを注入する。
func ContextWithEnv(ctx context.Context, env *RequestEnv) context.Context {
	return context.WithValue(ctx, envContextKey, env)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
