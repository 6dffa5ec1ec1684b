package model

import (
	"encoding/json"
	"time"
)

// ThreadParticipantRole はスレッド参加者の立場を表す。
type ThreadParticipantRole string

const (
	// ParticipantRoleOwner は物件オーナー。
	ParticipantRoleOwner ThreadParticipantRole = "owner"
	// ParticipantRoleAgent は担当エージェント。
	ParticipantRoleAgent ThreadParticipantRole = "agent"
	// ParticipantRoleInquirer は問い合わせユーザー。
	ParticipantRoleInquirer ThreadParticipantRole = "inquirer"
)

// ThreadMessageType はスレッドメッセージの種別を表す。
type ThreadMessageType string

const (
	// MessageTypeText はユーザーが入力した通常メッセージ。
	MessageTypeText ThreadMessageType = "text"
	// MessageTypeSystem はシステムが挿入するメッセージ。
	MessageTypeSystem ThreadMessageType = "system"
)

// ParseThreadMessageType は文字列をThreadMessageTypeに変換する。
func ParseThreadMessageType(value string) (ThreadMessageType, bool) {
	switch ThreadMessageType(value) {
	case MessageTypeText, MessageTypeSystem:
		return ThreadMessageType(value), true
	}
	return "", false
}

// PropertyThread は物件に紐づくメッセージスレッドを表す。
type PropertyThread struct {
	ID              string
	PropertyID      string
	CreatedByUserID string
	OrganizationID  *string
	LastMessageAt   *time.Time
	ArchivedAt      *time.Time
	CreatedAt       time.Time
}

// ThreadParticipant はスレッドへの参加を表す。(thread_id, user_id)で一意。
// leftAtが設定された参加者はメッセージ送信を許可されない。
type ThreadParticipant struct {
	ThreadID string
	UserID   string
	Role     ThreadParticipantRole
	JoinedAt time.Time
	LeftAt   *time.Time
}

// ThreadMessage はスレッド内の1メッセージを表す。
type ThreadMessage struct {
	ID           string
	ThreadID     string
	SenderUserID string
	MessageType  ThreadMessageType
	Body         string
	Metadata     json.RawMessage
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// MessageReadState はユーザーごとのスレッド既読位置を表す。
type MessageReadState struct {
	ThreadID          string
	UserID            string
	LastReadMessageID *string
	LastReadAt        *time.Time
}

// ThreadWithUnread はスレッド一覧表示用にスレッドと未読数を結合した構造体。
type ThreadWithUnread struct {
	PropertyThread
	UnreadCount int
}
