// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, resource, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeNoteNotFound     = "NOTE_NOT_FOUND"
	ErrCodeReminderNotFound = "REMINDER_NOT_FOUND"
	ErrCodeContactNotFound  = "CONTACT_NOT_FOUND"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidID        = "INVALID_ID"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeAuthFailed       = "AUTH_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNoteNotFoundError はメモ未検出エラーを生成する。
func NewNoteNotFoundError(noteID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたメモが見つかりません: %d", noteID),
		Category: "resource",
		Action:   "メモIDを確認してください。",
	}
}

// NewReminderNotFoundError はリマインダー未検出エラーを生成する。
func NewReminderNotFoundError(reminderID int64) *APIError {
	return &APIError{
		Code:     ErrCodeReminderNotFound,
		Message:  fmt.Sprintf("指定されたリマインダーが見つかりません: %d", reminderID),
		Category: "resource",
		Action:   "リマインダーIDを確認してください。",
	}
}

// NewContactNotFoundError は連絡先未検出エラーを生成する。
func NewContactNotFoundError(contactID int64) *APIError {
	return &APIError{
		Code:     ErrCodeContactNotFound,
		Message:  fmt.Sprintf("指定された連絡先が見つかりません: %d", contactID),
		Category: "resource",
		Action:   "連絡先IDを確認してください。",
	}
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidIDError はパスパラメータのID不正エラーを生成する。
func NewInvalidIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効なIDです: %s", raw),
		Category: "validation",
		Action:   "数値のIDを指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewAuthFailedError はログイン処理の失敗を表すエラーを生成する。
// 原因（IdP、ユーザー解決、セッション）はクライアントに区別させない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "ログインに失敗しました。",
		Category: "auth",
		Action:   "もう一度ログインしてください。",
	}
}

// NewNotFoundError は存在しないエンドポイントへのリクエストエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたリソースが見つかりません。",
		Category: "resource",
		Action:   "URLを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// AuthProviderError は上流IdPとのやり取り（認可コード交換、IDトークン検証、
// ユーザー情報取得）に失敗したことを表す。セッションは作成されない。
type AuthProviderError struct {
	Op  string
	Err error
}

func (e *AuthProviderError) Error() string {
	return fmt.Sprintf("auth provider: %s: %v", e.Op, e.Err)
}

func (e *AuthProviderError) Unwrap() error { return e.Err }

// PrincipalResolutionError はログイン中のユーザー解決でストレージ障害が発生したことを表す。
type PrincipalResolutionError struct {
	Op  string
	Err error
}

func (e *PrincipalResolutionError) Error() string {
	return fmt.Sprintf("principal resolution: %s: %v", e.Op, e.Err)
}

func (e *PrincipalResolutionError) Unwrap() error { return e.Err }

// SessionError はセッションストアが利用できないことを表す。
// 読み取り時は未認証に格下げされ、書き込み時はログインフローを失敗させる。
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsAuthProviderError はerrがAuthProviderErrorを含むかどうかを返す。
func IsAuthProviderError(err error) bool {
	var target *AuthProviderError
	return errors.As(err, &target)
}

// IsPrincipalResolutionError はerrがPrincipalResolutionErrorを含むかどうかを返す。
func IsPrincipalResolutionError(err error) bool {
	var target *PrincipalResolutionError
	return errors.As(err, &target)
}

// IsSessionError はerrがSessionErrorを含むかどうかを返す。
func IsSessionError(err error) bool {
	var target *SessionError
	return errors.As(err, &target)
}
