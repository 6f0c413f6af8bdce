package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "memoria_session"

// CookiePolicy はセッションCookieの属性を保持する。
type CookiePolicy struct {
	Name     string
	MaxAge   int
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// NewCookiePolicy はCookiePolicyを生成する。
// 本番環境ではSameSite=Strict、それ以外ではLaxにする。
func NewCookiePolicy(maxAge int, secure, production bool, domain string) CookiePolicy {
	sameSite := http.SameSiteLaxMode
	if production {
		sameSite = http.SameSiteStrictMode
	}
	return CookiePolicy{
		Name:     SessionCookieName,
		MaxAge:   maxAge,
		Secure:   secure,
		SameSite: sameSite,
		Domain:   domain,
	}
}

// SessionCookie はセッションCookieを生成する。HttpOnlyは常に付与する。
func (p CookiePolicy) SessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   p.MaxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// ClearCookie はセッションCookieを削除するためのCookieを生成する。
func (p CookiePolicy) ClearCookie() *http.Cookie {
	c := p.SessionCookie("")
	c.MaxAge = -1
	return c
}

// SessionStore はセッション参照の作成・復元・破棄を行う。
// セッションにはローカルユーザーIDのみを保存し、復元のたびにユーザー行を読み直す。
type SessionStore struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	secret   []byte
	maxAge   time.Duration
	now      func() time.Time
}

// NewSessionStore はSessionStoreを生成する。
func NewSessionStore(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	secret string,
	maxAge time.Duration,
) *SessionStore {
	return &SessionStore{
		sessions: sessions,
		users:    users,
		secret:   []byte(secret),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Serialize はユーザーのセッションを作成し永続化する。
// 保存に失敗した場合は*model.SessionErrorを返す。
func (s *SessionStore) Serialize(ctx context.Context, user *model.User) (*model.Session, error) {
	if user == nil || user.ID == 0 {
		return nil, &model.SessionError{Op: "serialize", Err: fmt.Errorf("user is not persisted")}
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, &model.SessionError{Op: "serialize", Err: fmt.Errorf("failed to generate session ID: %w", err)}
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, &model.SessionError{Op: "serialize", Err: err}
	}

	return session, nil
}

// Deserialize はセッションIDからユーザーを復元する。
// セッションが存在しない・期限切れ・ユーザー削除済みの場合は(nil, nil)を返す。
// ストレージ障害は*model.SessionErrorを返す。
func (s *SessionStore) Deserialize(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, &model.SessionError{Op: "deserialize", Err: err}
	}
	if session == nil || session.Expired(s.now()) {
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, &model.SessionError{Op: "deserialize", Err: err}
	}
	return user, nil
}

// Destroy はセッションを破棄する。
func (s *SessionStore) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return &model.SessionError{Op: "destroy", Err: err}
	}
	return nil
}

// EncodeCookie はセッションIDに署名を付けたCookie値を返す。
// 形式は "<id>.<base64url(HMAC-SHA256(secret, id))>"。
func (s *SessionStore) EncodeCookie(sessionID string) string {
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(s.sign(sessionID))
}

// DecodeCookie は署名を検証してセッションIDを取り出す。
// 署名が不正な場合はfalseを返し、セッションなしとして扱う。
func (s *SessionStore) DecodeCookie(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}
	sessionID, encoded := value[:idx], value[idx+1:]

	mac, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(mac, s.sign(sessionID)) {
		return "", false
	}
	return sessionID, true
}

func (s *SessionStore) sign(sessionID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(sessionID))
	return h.Sum(nil)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
