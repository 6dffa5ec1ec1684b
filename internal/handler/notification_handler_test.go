package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/notification"
)

// --- モック定義 ---

// mockNotificationService はNotificationServiceInterfaceのモック実装。
type mockNotificationService struct {
	listFn             func(ctx context.Context, userID string, limit int, cursor string) (*notification.ListResult, error)
	updatePreferenceFn func(ctx context.Context, input notification.PreferenceInput) error
	getPreferenceFn    func(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error)
}

func (m *mockNotificationService) List(ctx context.Context, userID string, limit int, cursor string) (*notification.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit, cursor)
	}
	return &notification.ListResult{}, nil
}

func (m *mockNotificationService) UpdatePreference(ctx context.Context, input notification.PreferenceInput) error {
	if m.updatePreferenceFn != nil {
		return m.updatePreferenceFn(ctx, input)
	}
	return nil
}

func (m *mockNotificationService) GetPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
	if m.getPreferenceFn != nil {
		return m.getPreferenceFn(ctx, userID, eventType)
	}
	return &model.NotificationPreference{}, nil
}

// --- GET /api/notifications テスト ---

func TestNotificationHandler_List_Success(t *testing.T) {
	svc := &mockNotificationService{
		listFn: func(ctx context.Context, userID string, limit int, cursor string) (*notification.ListResult, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if limit != 10 {
				t.Errorf("limit = %d, want 10", limit)
			}
			if cursor != "notif-5" {
				t.Errorf("cursor = %q, want %q", cursor, "notif-5")
			}
			return &notification.ListResult{
				Notifications: []*model.Notification{
					{ID: "notif-6", Type: "thread.message_sent", Title: "新着メッセージ"},
				},
				HasMore:    true,
				NextCursor: "notif-6",
			}, nil
		},
	}

	h := NewNotificationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?limit=10&cursor=notif-5", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp notificationListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Notifications) != 1 {
		t.Fatalf("len(notifications) = %d, want 1", len(resp.Notifications))
	}
	if resp.Notifications[0].Title != "新着メッセージ" {
		t.Errorf("title = %q", resp.Notifications[0].Title)
	}
	if resp.NextCursor != "notif-6" {
		t.Errorf("next_cursor = %q, want %q", resp.NextCursor, "notif-6")
	}
}

func TestNotificationHandler_List_NoUser_Returns401(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- GET /api/notifications/preferences テスト ---

func TestNotificationHandler_GetPreference_Success(t *testing.T) {
	svc := &mockNotificationService{
		getPreferenceFn: func(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
			if eventType != "thread.message_sent" {
				t.Errorf("eventType = %q", eventType)
			}
			return &model.NotificationPreference{
				UserID:       userID,
				EventType:    eventType,
				InAppEnabled: true,
				EmailEnabled: false,
				PushEnabled:  true,
			}, nil
		},
	}

	h := NewNotificationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/preferences?event_type=thread.message_sent", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.GetPreference(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp preferenceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.InAppEnabled || resp.EmailEnabled || !resp.PushEnabled {
		t.Errorf("preference = %+v", resp)
	}
}

func TestNotificationHandler_GetPreference_MissingEventType_Returns400(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/preferences", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.GetPreference(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

// --- PUT /api/notifications/preferences テスト ---

func TestNotificationHandler_UpdatePreference_Success(t *testing.T) {
	var captured notification.PreferenceInput
	svc := &mockNotificationService{
		updatePreferenceFn: func(ctx context.Context, input notification.PreferenceInput) error {
			captured = input
			return nil
		},
	}

	h := NewNotificationHandler(svc)

	body := `{"event_type": "rental_application.decided", "in_app_enabled": true, "email_enabled": true, "push_enabled": false}`
	req := httptest.NewRequest(http.MethodPut, "/api/notifications/preferences", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.UpdatePreference(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if captured.UserID != "user-123" {
		t.Errorf("userID = %q, want %q", captured.UserID, "user-123")
	}
	if captured.EventType != "rental_application.decided" {
		t.Errorf("eventType = %q", captured.EventType)
	}
	if !captured.InAppEnabled || !captured.EmailEnabled || captured.PushEnabled {
		t.Errorf("captured = %+v", captured)
	}
}

func TestNotificationHandler_UpdatePreference_MissingEventType_Returns400(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{
		updatePreferenceFn: func(ctx context.Context, input notification.PreferenceInput) error {
			t.Fatal("service should not be called")
			return nil
		},
	})

	body := `{"in_app_enabled": true}`
	req := httptest.NewRequest(http.MethodPut, "/api/notifications/preferences", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.UpdatePreference(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
