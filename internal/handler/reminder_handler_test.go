package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/reminder"
)

type mockReminderService struct {
	listFn     func(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error)
	getFn      func(ctx context.Context, userID, reminderID int64) (*model.Reminder, error)
	createFn   func(ctx context.Context, userID int64, in reminder.Input) (*model.Reminder, error)
	updateFn   func(ctx context.Context, userID, reminderID int64, in reminder.Input) (*model.Reminder, error)
	completeFn func(ctx context.Context, userID, reminderID int64) (*model.Reminder, error)
	deleteFn   func(ctx context.Context, userID, reminderID int64) error
}

func (m *mockReminderService) List(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error) {
	return m.listFn(ctx, userID, includeCompleted)
}
func (m *mockReminderService) Get(ctx context.Context, userID, reminderID int64) (*model.Reminder, error) {
	return m.getFn(ctx, userID, reminderID)
}
func (m *mockReminderService) Create(ctx context.Context, userID int64, in reminder.Input) (*model.Reminder, error) {
	return m.createFn(ctx, userID, in)
}
func (m *mockReminderService) Update(ctx context.Context, userID, reminderID int64, in reminder.Input) (*model.Reminder, error) {
	return m.updateFn(ctx, userID, reminderID, in)
}
func (m *mockReminderService) Complete(ctx context.Context, userID, reminderID int64) (*model.Reminder, error) {
	return m.completeFn(ctx, userID, reminderID)
}
func (m *mockReminderService) Delete(ctx context.Context, userID, reminderID int64) error {
	return m.deleteFn(ctx, userID, reminderID)
}

func TestReminderHandler_ListReminders_IncludeCompleted(t *testing.T) {
	tests := []struct {
		query      string
		want       bool
		wantStatus int
	}{
		{"", false, http.StatusOK},
		{"?include_completed=true", true, http.StatusOK},
		{"?include_completed=false", false, http.StatusOK},
		{"?include_completed=yes", false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got bool
			svc := &mockReminderService{
				listFn: func(ctx context.Context, userID int64, includeCompleted bool) ([]*model.Reminder, error) {
					got = includeCompleted
					return []*model.Reminder{}, nil
				},
			}
			h := NewReminderHandler(svc)

			w := httptest.NewRecorder()
			h.ListReminders(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/reminders"+tt.query, nil), 1))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got != tt.want {
				t.Errorf("includeCompleted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReminderHandler_CreateReminder_ParsesDueAt(t *testing.T) {
	var got reminder.Input
	svc := &mockReminderService{
		createFn: func(ctx context.Context, userID int64, in reminder.Input) (*model.Reminder, error) {
			got = in
			return &model.Reminder{ID: 1, UserID: userID, Title: in.Title, DueAt: in.DueAt}, nil
		},
	}
	h := NewReminderHandler(svc)

	body := `{"title":"歯医者","due_at":"2026-10-20T09:00:00+09:00"}`
	w := httptest.NewRecorder()
	h.CreateReminder(w, withUserID(newJSONRequest(http.MethodPost, "/api/reminders", body), 1))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	want := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", got.DueAt, want)
	}
}

func TestReminderHandler_CompleteReminder(t *testing.T) {
	svc := &mockReminderService{
		completeFn: func(ctx context.Context, userID, reminderID int64) (*model.Reminder, error) {
			if reminderID != 8 {
				return nil, model.NewReminderNotFoundError(reminderID)
			}
			return &model.Reminder{ID: reminderID, UserID: userID, Title: "x", Completed: true}, nil
		},
	}
	h := NewReminderHandler(svc)

	req := withChiURLParam(withUserID(httptest.NewRequest(http.MethodPost, "/api/reminders/8/complete", nil), 1), "id", "8")
	w := httptest.NewRecorder()
	h.CompleteReminder(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body reminderResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !body.Completed {
		t.Error("expected completed=true")
	}

	req = withChiURLParam(withUserID(httptest.NewRequest(http.MethodPost, "/api/reminders/9/complete", nil), 1), "id", "9")
	w = httptest.NewRecorder()
	h.CompleteReminder(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestReminderHandler_DeleteReminder(t *testing.T) {
	svc := &mockReminderService{
		deleteFn: func(ctx context.Context, userID, reminderID int64) error { return nil },
	}
	h := NewReminderHandler(svc)

	req := withChiURLParam(withUserID(httptest.NewRequest(http.MethodDelete, "/api/reminders/8", nil), 1), "id", "8")
	w := httptest.NewRecorder()
	h.DeleteReminder(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
