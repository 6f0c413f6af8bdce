// Package model はドメインモデルを定義する。
package model

import "time"

// User はローカルユーザー（LocalUser）を表す。
// 上流IdPのsubject idごとに必ず1行だけ存在する。
type User struct {
	ID                int64
	UpstreamSubjectID string
	DisplayName       string
	Email             string
	PhotoURL          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session はブラウザセッションからローカルユーザーIDへの参照を表す。
// ペイロードにはユーザーIDのみを保持し、トークンやプロフィールは保存しない。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Principal はリクエストに紐づく認証済みの主体を表す。
// 未認証リクエストではnilとして扱い、永続化はしない。
type Principal struct {
	UserID      int64
	DisplayName string
	Email       string
	PhotoURL    string
}

// NewPrincipal はローカルユーザーからPrincipalを生成する。
// userがnilの場合はnil（未認証）を返す。
func NewPrincipal(user *User) *Principal {
	if user == nil {
		return nil
	}
	return &Principal{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		PhotoURL:    user.PhotoURL,
	}
}

// Authenticated はPrincipalが認証済みかどうかを返す。nilレシーバでも安全に呼び出せる。
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID != 0
}
