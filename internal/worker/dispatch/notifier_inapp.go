package dispatch

import (
	"context"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/notification"
	"github.com/hitoshi/estately/internal/rentalapp"
	"github.com/hitoshi/estately/internal/thread"
)

// InAppNotifier はアプリ内通知チャネルのノーティファイア。
// ペイロードの通知先ユーザーごとに通知レコードを作成する。
// 配信設定でin_appが無効なユーザーへの作成はスキップする。
type InAppNotifier struct {
	notifications *notification.Service
}

// NewInAppNotifier はInAppNotifierの新しいインスタンスを生成する。
func NewInAppNotifier(notifications *notification.Service) *InAppNotifier {
	return &InAppNotifier{notifications: notifications}
}

var _ Notifier = (*InAppNotifier)(nil)

// Deliver は通知先ユーザーごとにアプリ内通知を作成する。
func (n *InAppNotifier) Deliver(ctx context.Context, event *model.DomainEvent, entry *model.EventOutboxEntry) error {
	payload, err := ParsePayload(event)
	if err != nil {
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	title, body := notificationContent(event.EventType, payload)

	for _, userID := range payload.RecipientUserIDs {
		enabled, err := n.notifications.ChannelEnabled(ctx, userID, event.EventType, model.ChannelInApp)
		if err != nil {
			return err
		}
		if !enabled {
			continue
		}

		if _, err := n.notifications.Create(ctx, notification.CreateInput{
			UserID: userID,
			Type:   event.EventType,
			Title:  title,
			Body:   body,
			Data:   event.Payload,
		}); err != nil {
			return err
		}
	}

	return nil
}

// notificationContent はイベント種別からユーザー向けの件名と本文を組み立てる。
func notificationContent(eventType string, payload *EventPayload) (string, string) {
	switch eventType {
	case rentalapp.EventApplicationSubmitted:
		return "新しい賃貸申込があります", "物件に新しい賃貸申込が届きました。内容を確認してください。"
	case rentalapp.EventApplicationDecided:
		switch payload.Status {
		case string(model.RentalStatusApproved):
			return "賃貸申込が承認されました", "申込が承認されました。次の手続きに進んでください。"
		case string(model.RentalStatusRejected):
			return "賃貸申込の結果のお知らせ", "申込は今回は見送りとなりました。"
		}
		return "賃貸申込の状態が更新されました", "申込の審査状況が更新されました。"
	case thread.EventThreadCreated:
		return "新しい問い合わせがあります", "物件に新しい問い合わせスレッドが作成されました。"
	case thread.EventMessageSent:
		if payload.Preview != "" {
			return "新着メッセージ", payload.Preview
		}
		return "新着メッセージ", "スレッドに新しいメッセージが届きました。"
	}
	return "お知らせ", "新しい更新があります。"
}
