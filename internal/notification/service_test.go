package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/estately/internal/model"
)

// --- モック ---

type mockNotificationRepo struct {
	createFn           func(ctx context.Context, notification *model.Notification) error
	listByUserFn       func(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error)
	upsertPreferenceFn func(ctx context.Context, pref *model.NotificationPreference) error
	findPreferenceFn   func(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error)
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *model.Notification) error {
	if m.createFn != nil {
		return m.createFn(ctx, notification)
	}
	notification.ID = "notification-1"
	return nil
}
func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit, cursor)
	}
	return nil, false, nil
}
func (m *mockNotificationRepo) UpsertPreference(ctx context.Context, pref *model.NotificationPreference) error {
	if m.upsertPreferenceFn != nil {
		return m.upsertPreferenceFn(ctx, pref)
	}
	return nil
}
func (m *mockNotificationRepo) FindPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
	if m.findPreferenceFn != nil {
		return m.findPreferenceFn(ctx, userID, eventType)
	}
	return nil, nil
}

// --- テスト ---

// TestService_Create は通知作成が採番されたIDを返すことを検証する。
func TestService_Create(t *testing.T) {
	service := NewService(&mockNotificationRepo{})

	notification, err := service.Create(context.Background(), CreateInput{
		UserID: "user-1",
		Type:   "rental_application.submitted",
		Title:  "新しい申込があります",
		Body:   "物件への賃貸申込が届きました。",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notification.ID != "notification-1" {
		t.Errorf("expected notification-1, got %s", notification.ID)
	}
}

// TestService_List はページネーションの制限適用とカーソルの計算を検証する。
func TestService_List(t *testing.T) {
	repo := &mockNotificationRepo{}
	var gotLimit int
	repo.listByUserFn = func(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error) {
		gotLimit = limit
		return []*model.Notification{{ID: "n-1"}, {ID: "n-2"}}, true, nil
	}
	service := NewService(repo)

	result, err := service.List(context.Background(), "user-1", 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotLimit != listLimitDefault {
		t.Errorf("expected default limit %d, got %d", listLimitDefault, gotLimit)
	}
	if !result.HasMore {
		t.Error("expected HasMore")
	}
	if result.NextCursor != "n-2" {
		t.Errorf("expected next cursor n-2, got %q", result.NextCursor)
	}
}

// TestService_List_Error はリポジトリエラーがラップされて返ることを検証する。
func TestService_List_Error(t *testing.T) {
	repo := &mockNotificationRepo{}
	repo.listByUserFn = func(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error) {
		return nil, false, errors.New("connection refused")
	}
	service := NewService(repo)

	_, err := service.List(context.Background(), "user-1", 10, "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestService_GetPreference_Default は未設定の場合に全チャネル有効の
// デフォルトが返ることを検証する。
func TestService_GetPreference_Default(t *testing.T) {
	service := NewService(&mockNotificationRepo{})

	pref, err := service.GetPreference(context.Background(), "user-1", "thread.message_sent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pref.InAppEnabled || !pref.EmailEnabled || !pref.PushEnabled {
		t.Errorf("expected all channels enabled by default, got %+v", pref)
	}
}

// TestService_ChannelEnabled は設定に基づくチャネル抑制判定を検証する。
func TestService_ChannelEnabled(t *testing.T) {
	repo := &mockNotificationRepo{}
	repo.findPreferenceFn = func(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
		return &model.NotificationPreference{
			UserID:       userID,
			EventType:    eventType,
			InAppEnabled: true,
			EmailEnabled: false,
			PushEnabled:  false,
		}, nil
	}
	service := NewService(repo)

	tests := []struct {
		channel model.NotificationChannel
		want    bool
	}{
		{channel: model.ChannelInApp, want: true},
		{channel: model.ChannelEmail, want: false},
		{channel: model.ChannelPush, want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			got, err := service.ChannelEnabled(context.Background(), "user-1", "thread.message_sent", tt.channel)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestService_UpdatePreference は冪等なUPSERTの呼び出しを検証する。
func TestService_UpdatePreference(t *testing.T) {
	repo := &mockNotificationRepo{}
	var gotPref *model.NotificationPreference
	repo.upsertPreferenceFn = func(ctx context.Context, pref *model.NotificationPreference) error {
		gotPref = pref
		return nil
	}
	service := NewService(repo)

	err := service.UpdatePreference(context.Background(), PreferenceInput{
		UserID:       "user-1",
		EventType:    "rental_application.decided",
		InAppEnabled: true,
		EmailEnabled: true,
		PushEnabled:  false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPref == nil || gotPref.EventType != "rental_application.decided" || gotPref.PushEnabled {
		t.Errorf("unexpected preference: %+v", gotPref)
	}
}
