package model

import (
	"encoding/json"
	"time"
)

// Notification はユーザー向けのアプリ内通知を表す。
// アウトボックスディスパッチャのin_appチャネルがこのレコードを作成する。
type Notification struct {
	ID             string
	UserID         string
	OrganizationID *string
	Type           string
	Title          string
	Body           string
	Data           json.RawMessage
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// NotificationPreference はイベント種別ごとのチャネル配信設定を表す。
// (user_id, event_type)で一意。
type NotificationPreference struct {
	ID           string
	UserID       string
	EventType    string
	InAppEnabled bool
	EmailEnabled bool
	PushEnabled  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
