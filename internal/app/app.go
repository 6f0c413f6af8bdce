// Package app はプロセスの起動とサブコマンドの実行を担う。
// 設定の読み込み、依存関係のワイヤリング、HTTPサーバーと
// バックグラウンドジョブのライフサイクル管理を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/memoria/internal/auth"
	"github.com/hitoshi/memoria/internal/config"
	"github.com/hitoshi/memoria/internal/contact"
	"github.com/hitoshi/memoria/internal/database"
	"github.com/hitoshi/memoria/internal/handler"
	"github.com/hitoshi/memoria/internal/logger"
	"github.com/hitoshi/memoria/internal/metrics"
	"github.com/hitoshi/memoria/internal/middleware"
	"github.com/hitoshi/memoria/internal/note"
	"github.com/hitoshi/memoria/internal/reminder"
	"github.com/hitoshi/memoria/internal/repository"
	"github.com/hitoshi/memoria/internal/security"
	"github.com/hitoshi/memoria/internal/user"
	"github.com/hitoshi/memoria/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	pingTimeout     = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 設定不備の場合は*config.ConfigErrorをラップしたエラーを返す。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELに合わせてロガーを再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Any("config", cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// スキーマを確認してDB接続を開き、全依存関係をワイヤリングしてから
// HTTPサーバーとセッションクリーンアップループを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. スキーマの確認（冪等）
	if err := database.EnsureSchema(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 2. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "memoria"),
	)
	collector := metrics.NewCollector(reg)

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)

	// 5. 認証パイプラインの初期化
	provider, err := newIdentityProvider(ctx, cfg)
	if err != nil {
		return err
	}
	maxAge := time.Duration(cfg.SessionMaxAge) * time.Second
	sessionStore := auth.NewSessionStore(sessionRepo, userRepo, cfg.SessionSecret, maxAge)
	authService := auth.NewService(
		provider,
		auth.NewResolver(userRepo, collector),
		sessionStore,
		collector,
		auth.ServiceConfig{
			ProviderTimeout: cfg.AuthProviderTimeout,
			StoreTimeout:    cfg.StoreTimeout,
		},
	)
	sessionCookie := auth.NewCookiePolicy(cfg.SessionMaxAge, cfg.CookieSecure(), cfg.IsProduction(), cfg.CookieDomain)

	// 6. ドメインサービスの初期化
	sanitizer := security.NewContentSanitizer()
	userService := user.NewService(userRepo, sessionRepo, sanitizer)
	noteService := note.NewService(noteRepo, sanitizer)
	reminderService := reminder.NewService(reminderRepo, sanitizer)
	contactService := contact.NewService(contactRepo, sanitizer)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:   slog.Default(),
		Metrics:  collector,
		Sessions: sessionStore,
		Principal: middleware.PrincipalConfig{
			CookieName:   sessionCookie.Name,
			StoreTimeout: cfg.StoreTimeout,
			Env: &middleware.RequestEnv{
				AppID:         cfg.AppID,
				FrontendURL:   cfg.FrontendURL,
				SigningSecret: cfg.SessionSecret,
				Production:    cfg.IsProduction(),
			},
			Metrics: collector,
		},
		CORSAllowedOrigin: cfg.FrontendURL,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure(),
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthMode:    cfg.AuthMode,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			SessionCookie: sessionCookie,
		},

		UserService:     userService,
		NoteService:     noteService,
		ReminderService: reminderService,
		ContactService:  contactService,
	})

	// 8. HTTPサーバーとクリーンアップループの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cleanupJob.Start(gctx, cfg.SessionCleanupInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はスキーマを適用する。
// serve起動時と同じ処理を明示的に実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.EnsureSchema(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は期限切れセッションを1回だけ削除する。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	return job.Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はプール設定を適用してDBを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.DBMaxOpenConns
	pool.MaxIdleConns = cfg.DBMaxIdleConns

	db, err := database.Open(cfg.DatabaseURL, pool)
	if err != nil {
		return nil, err
	}

	if err := database.Ping(ctx, db, pingTimeout); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// newIdentityProvider はAUTH_MODEに応じた上流IdPアダプタを生成する。
func newIdentityProvider(ctx context.Context, cfg *config.Config) (auth.IdentityProvider, error) {
	switch cfg.AuthMode {
	case config.AuthModeFirebase:
		provider, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseCredentials, cfg.FrontendURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase provider: %w", err)
		}
		return provider, nil
	default:
		return auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}), nil
	}
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
