package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/memoria/internal/auth"
	"github.com/hitoshi/memoria/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	UpdateDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// sessions、notes、reminders、contactsも削除される。
	Withdraw(ctx context.Context, userID int64) error
}

// UserHandler はプロフィール管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  auth.CookiePolicy
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie auth.CookiePolicy) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	PhotoURL    string    `json:"photo_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProfileResponse(u *model.User) profileResponse {
	return profileResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// GetProfile はプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateProfile は表示名を更新する。
// PUT /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateDisplayName(r.Context(), userID, req.DisplayName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// Withdraw はユーザーの退会処理を実行し、セッションCookieを削除する。
// DELETE /api/profile
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.cookie.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}
