// Package notification はアプリ内通知と配信設定のドメインロジックを提供する。
//
// 通知レコードはアウトボックスディスパッチャのin_appチャネルから作成される。
// 配信設定はイベント種別ごとのオプトアウトを表し、設定が存在しない場合は
// 全チャネル有効のデフォルトが適用される。
package notification

import (
	"context"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
)

const (
	listLimitDefault = 20
	listLimitMax     = 100
)

// CreateInput は通知作成の入力。
type CreateInput struct {
	UserID         string
	OrganizationID *string
	Type           string
	Title          string
	Body           string
	Data           []byte
}

// ListResult は通知一覧の結果。
type ListResult struct {
	Notifications []*model.Notification
	HasMore       bool
	NextCursor    string
}

// PreferenceInput は配信設定更新の入力。
type PreferenceInput struct {
	UserID       string
	EventType    string
	InAppEnabled bool
	EmailEnabled bool
	PushEnabled  bool
}

// Service はアプリ内通知のサービス層。
type Service struct {
	notificationRepo repository.NotificationRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(notificationRepo repository.NotificationRepository) *Service {
	return &Service{notificationRepo: notificationRepo}
}

// Create はアプリ内通知を作成する。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Notification, error) {
	notification := &model.Notification{
		UserID:         input.UserID,
		OrganizationID: input.OrganizationID,
		Type:           input.Type,
		Title:          input.Title,
		Body:           input.Body,
		Data:           input.Data,
	}
	if err := s.notificationRepo.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("通知の作成に失敗しました: %w", err)
	}

	return notification, nil
}

// List はユーザーの通知一覧をカーソルページネーションで返す。
func (s *Service) List(ctx context.Context, userID string, limit int, cursor string) (*ListResult, error) {
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	notifications, hasMore, err := s.notificationRepo.ListByUser(ctx, userID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}

	result := &ListResult{
		Notifications: notifications,
		HasMore:       hasMore,
	}
	if hasMore && len(notifications) > 0 {
		result.NextCursor = notifications[len(notifications)-1].ID
	}

	return result, nil
}

// UpdatePreference はイベント種別ごとの配信設定を冪等に更新する。
func (s *Service) UpdatePreference(ctx context.Context, input PreferenceInput) error {
	pref := &model.NotificationPreference{
		UserID:       input.UserID,
		EventType:    input.EventType,
		InAppEnabled: input.InAppEnabled,
		EmailEnabled: input.EmailEnabled,
		PushEnabled:  input.PushEnabled,
	}
	if err := s.notificationRepo.UpsertPreference(ctx, pref); err != nil {
		return fmt.Errorf("配信設定の更新に失敗しました: %w", err)
	}

	return nil
}

// GetPreference は指定ユーザー・イベント種別の配信設定を返す。
// 設定が存在しない場合は全チャネル有効のデフォルトを返す。
func (s *Service) GetPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
	pref, err := s.notificationRepo.FindPreference(ctx, userID, eventType)
	if err != nil {
		return nil, fmt.Errorf("配信設定の取得に失敗しました: %w", err)
	}
	if pref == nil {
		return &model.NotificationPreference{
			UserID:       userID,
			EventType:    eventType,
			InAppEnabled: true,
			EmailEnabled: true,
			PushEnabled:  true,
		}, nil
	}

	return pref, nil
}

// ChannelEnabled は指定チャネルの配信が有効かを返す。
// ディスパッチャが配信前の抑制判定に使用する。
func (s *Service) ChannelEnabled(ctx context.Context, userID, eventType string, channel model.NotificationChannel) (bool, error) {
	pref, err := s.GetPreference(ctx, userID, eventType)
	if err != nil {
		return false, err
	}

	switch channel {
	case model.ChannelInApp:
		return pref.InAppEnabled, nil
	case model.ChannelEmail:
		return pref.EmailEnabled, nil
	case model.ChannelPush:
		return pref.PushEnabled, nil
	}
	return false, nil
}
