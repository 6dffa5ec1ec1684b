// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証プロバイダー（外部コラボレータ）が所有し、コアはidとemailのみ参照する。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// 認証プロバイダーが発行し、コアは読み取りのみ行う。
type Session struct {
	ID                   string
	UserID               string
	Email                string
	ActiveOrganizationID *string
	ExpiresAt            time.Time
	CreatedAt            time.Time
}

// InvitationStatus は組織招待の状態を表す。
type InvitationStatus string

const (
	// InvitationStatusPending は未応答の招待。
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted は承諾済みの招待。
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusRejected は辞退された招待。
	InvitationStatusRejected InvitationStatus = "rejected"
)

// Invitation は組織への招待を表す。外部コラボレータが所有するテーブルで、
// コアはエージェント向けの保留中招待を読み取るのみ。
type Invitation struct {
	ID             string
	Email          string
	OrganizationID string
	Status         InvitationStatus
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// UserProfile はプロフィールレコードを表す。ペルソナ管理はmetadata（jsonb）のみ関与する。
// 最初のペルソナ書き込み時に遅延作成される。
type UserProfile struct {
	ID        string
	UserID    string
	Metadata  PersonaMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}
