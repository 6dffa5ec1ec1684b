package model

import (
	"encoding/json"
	"time"
)

// NotificationChannel はドメインイベントの配信チャネルを表す。
type NotificationChannel string

const (
	// ChannelInApp はアプリ内通知チャネル。
	ChannelInApp NotificationChannel = "in_app"
	// ChannelEmail はメール配信チャネル。
	ChannelEmail NotificationChannel = "email"
	// ChannelPush はプッシュ通知チャネル。
	ChannelPush NotificationChannel = "push"
)

// DefaultChannels はチャネル未指定時のデフォルト配信先。
var DefaultChannels = []NotificationChannel{ChannelInApp}

// ParseNotificationChannel は文字列をNotificationChannelに変換する。
func ParseNotificationChannel(value string) (NotificationChannel, bool) {
	switch NotificationChannel(value) {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return NotificationChannel(value), true
	}
	return "", false
}

// OutboxStatus はアウトボックスエントリの配信状態を表す。
type OutboxStatus string

const (
	// OutboxStatusPending は未配信。
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusSent は配信済み。
	OutboxStatusSent OutboxStatus = "sent"
	// OutboxStatusFailed は配信失敗（リトライ上限到達）。
	OutboxStatusFailed OutboxStatus = "failed"
)

// DomainEvent は集約に起きた事実の不変レコードを表す。
// 追記専用で、更新・削除されない。
type DomainEvent struct {
	ID            string
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// EventOutboxEntry は (イベント, チャネル) ごとの配信意図を表す。
// 親イベントと同一トランザクションで作成され、以後はディスパッチャのみが
// status / attempt_count / next_attempt_at / last_error を更新する。
type EventOutboxEntry struct {
	ID            string
	EventID       string
	Channel       NotificationChannel
	Status        OutboxStatus
	AttemptCount  int
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
