package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/memoria/internal/config"
	"github.com/hitoshi/memoria/internal/metrics"
	"github.com/hitoshi/memoria/internal/middleware"
)

// SessionStore はルーターが必要とするセッション操作。auth.SessionStoreが満たす。
type SessionStore interface {
	middleware.SessionResolver
	CookieEncoder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	Sessions          SessionStore
	Principal         middleware.PrincipalConfig
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	// AuthModeで選ばれた方式のログインルートのみを登録する。空の場合はoauth2。
	AuthMode    config.AuthMode
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	UserService     UserServiceInterface
	NoteService     NoteServiceInterface
	ReminderService ReminderServiceInterface
	ContactService  ContactServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → StatusRecorder → RealIP → Principal → Logging → Recovery
//
// 最外周のRecoveryはPrincipalより外側のpanicを受け止める。RequestEnvが未注入のためdetailは出さない。
// 内側のRecoveryはRequestEnvを参照し、本番環境以外ではdetailを含める。
// /api/* にはさらに RequirePrincipal → RateLimit(General) → CSRF を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(metrics.StatusRecorder(collector))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewPrincipalMiddleware(deps.Sessions, deps.Principal))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.SessionCookie)
	noteHandler := NewNoteHandler(deps.NoteService)
	reminderHandler := NewReminderHandler(deps.ReminderService)
	contactHandler := NewContactHandler(deps.ContactService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート（IP単位のレート制限） ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		switch deps.AuthMode {
		case config.AuthModeFirebase:
			r.Post("/firebase/session", authHandler.FirebaseSession)
		default:
			r.Get("/google", authHandler.Login)
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
		}
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequirePrincipal)
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// プロフィール
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", userHandler.GetProfile)
			r.Put("/", userHandler.UpdateProfile)
			r.Delete("/", userHandler.Withdraw)
		})

		// メモ
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", noteHandler.ListNotes)
			r.Post("/", noteHandler.CreateNote)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", noteHandler.GetNote)
				r.Put("/", noteHandler.UpdateNote)
				r.Delete("/", noteHandler.DeleteNote)
			})
		})

		// リマインダー
		r.Route("/reminders", func(r chi.Router) {
			r.Get("/", reminderHandler.ListReminders)
			r.Post("/", reminderHandler.CreateReminder)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reminderHandler.GetReminder)
				r.Put("/", reminderHandler.UpdateReminder)
				r.Delete("/", reminderHandler.DeleteReminder)
				r.Post("/complete", reminderHandler.CompleteReminder)
			})
		})

		// 連絡先
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", contactHandler.ListContacts)
			r.Post("/", contactHandler.CreateContact)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", contactHandler.GetContact)
				r.Put("/", contactHandler.UpdateContact)
				r.Delete("/", contactHandler.DeleteContact)
			})
		})
	})

	return r
}
