package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/memoria/internal/metrics"
	"github.com/hitoshi/memoria/internal/model"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ProviderTimeout time.Duration // 上流IdPとの交換のタイムアウト
	StoreTimeout    time.Duration // ストア操作1回あたりのタイムアウト
}

// Service はログインフロー全体を組み立てる。
type Service struct {
	provider IdentityProvider
	resolver *Resolver
	sessions *SessionStore
	metrics  metrics.MetricsCollector
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	resolver *Resolver,
	sessions *SessionStore,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 10 * time.Second
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}
	return &Service{
		provider: provider,
		resolver: resolver,
		sessions: sessions,
		metrics:  collector,
		config:   config,
	}
}

// LoginURL は上流IdPの認証URLを返す。
func (s *Service) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Sessions はセッションストアを返す。
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// CompleteLogin は認証情報の交換、ローカルユーザーの解決、セッション作成を順に行う。
// いずれかが失敗した場合、セッションは作成されない。
func (s *Service) CompleteLogin(ctx context.Context, credential string) (*model.Session, *model.User, error) {
	// 1. 上流IdPとの交換
	exCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	start := time.Now()
	profile, err := s.provider.Exchange(exCtx, credential)
	cancel()
	s.metrics.RecordExchangeLatency(time.Since(start))
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginProviderError)
		if !model.IsAuthProviderError(err) {
			err = &model.AuthProviderError{Op: "exchange", Err: err}
		}
		return nil, nil, err
	}

	// 2. ローカルユーザーの解決
	resCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	user, err := s.resolver.Resolve(resCtx, profile)
	cancel()
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginResolutionError)
		return nil, nil, err
	}

	// 3. セッション発行
	sesCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	session, err := s.sessions.Serialize(sesCtx, user)
	cancel()
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginSessionError)
		return nil, nil, err
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("user logged out")
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。未認証の場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.sessions.Deserialize(ctx, sessionID)
}
