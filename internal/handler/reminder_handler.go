package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/memoria/internal/middleware"
	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/reminder"
)

// ReminderServiceInterface はリマインダーハンドラーが必要とするサービスインターフェース。
type ReminderServiceInterface interface {
	List(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error)
	Get(ctx context.Context, userID, reminderID int64) (*model.Reminder, error)
	Create(ctx context.Context, userID int64, in reminder.Input) (*model.Reminder, error)
	Update(ctx context.Context, userID, reminderID int64, in reminder.Input) (*model.Reminder, error)
	Complete(ctx context.Context, userID, reminderID int64) (*model.Reminder, error)
	Delete(ctx context.Context, userID, reminderID int64) error
}

// ReminderHandler はリマインダー管理のHTTPハンドラー。
type ReminderHandler struct {
	service ReminderServiceInterface
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(service ReminderServiceInterface) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// reminderResponse はリマインダーのAPIレスポンス。
type reminderResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toReminderResponse(rem *model.Reminder) reminderResponse {
	return reminderResponse{
		ID:          rem.ID,
		Title:       rem.Title,
		Description: rem.Description,
		DueAt:       rem.DueAt,
		Completed:   rem.Completed,
		CreatedAt:   rem.CreatedAt,
		UpdatedAt:   rem.UpdatedAt,
	}
}

// reminderRequest はリマインダー作成・更新リクエストのボディ。
// due_atはRFC 3339形式。
type reminderRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
	Completed   bool       `json:"completed"`
}

func (req reminderRequest) input() reminder.Input {
	return reminder.Input{
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
		Completed:   req.Completed,
	}
}

// ListReminders はリマインダー一覧を返す。
// GET /api/reminders?include_completed=true
func (h *ReminderHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	includeCompleted := false
	if raw := r.URL.Query().Get("include_completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidInputError("include_completed はtrueまたはfalseで指定してください"))
			return
		}
		includeCompleted = v
	}

	reminders, err := h.service.List(r.Context(), userID, includeCompleted)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]reminderResponse, len(reminders))
	for i, rem := range reminders {
		resp[i] = toReminderResponse(rem)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetReminder はリマインダーを1件返す。
// GET /api/reminders/{id}
func (h *ReminderHandler) GetReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reminderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rem, err := h.service.Get(r.Context(), userID, reminderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

// CreateReminder はリマインダーを作成する。
// POST /api/reminders
func (h *ReminderHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.service.Create(r.Context(), userID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReminderResponse(rem))
}

// UpdateReminder はリマインダーを更新する。
// PUT /api/reminders/{id}
func (h *ReminderHandler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reminderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.service.Update(r.Context(), userID, reminderID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

// CompleteReminder はリマインダーを完了にする。
// POST /api/reminders/{id}/complete
func (h *ReminderHandler) CompleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reminderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rem, err := h.service.Complete(r.Context(), userID, reminderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

// DeleteReminder はリマインダーを削除する。
// DELETE /api/reminders/{id}
func (h *ReminderHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reminderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, reminderID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
