// Package auth は上流IdPとの認証、ローカルユーザーの解決、セッション管理を提供する。
package auth

import (
	"context"
	"log/slog"
)

// UpstreamProfile は上流IdPから取得したユーザー情報を表す。
// Resolverで一度だけ消費され、そのまま永続化もログ出力もしない。
type UpstreamProfile struct {
	SubjectID    string
	DisplayName  string
	Email        string
	PhotoURL     string
	AccessToken  string
	RefreshToken string
}

// LogValue はトークンを含めずにsubject idのみを出力する。
func (p UpstreamProfile) LogValue() slog.Value {
	return slog.GroupValue(slog.String("subject_id", p.SubjectID))
}

// IdentityProvider は上流IdPのアダプタ。ストアには一切触れない。
type IdentityProvider interface {
	// AuthCodeURL は同意画面へのリダイレクト先URLを返す。
	AuthCodeURL(state string) string
	// Exchange は認可コード（またはIDトークン）をUpstreamProfileに交換する。
	// 失敗は全て*model.AuthProviderErrorとして返す。
	Exchange(ctx context.Context, credential string) (*UpstreamProfile, error)
}
