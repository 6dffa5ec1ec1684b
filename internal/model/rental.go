package model

import (
	"encoding/json"
	"time"
)

// RentalApplicationStatus は賃貸申込のワークフロー状態を表す。
type RentalApplicationStatus string

const (
	// RentalStatusDraft は下書き。
	RentalStatusDraft RentalApplicationStatus = "draft"
	// RentalStatusSubmitted は提出済み。
	RentalStatusSubmitted RentalApplicationStatus = "submitted"
	// RentalStatusUnderReview は審査中。
	RentalStatusUnderReview RentalApplicationStatus = "under_review"
	// RentalStatusApproved は承認（終端状態）。
	RentalStatusApproved RentalApplicationStatus = "approved"
	// RentalStatusRejected は却下（終端状態）。
	RentalStatusRejected RentalApplicationStatus = "rejected"
	// RentalStatusWithdrawn は申込者による取り下げ。
	RentalStatusWithdrawn RentalApplicationStatus = "withdrawn"
)

// IsTerminal は承認/却下済みの終端状態かを返す。
// 終端状態の申込に対する決定操作はTERMINAL_STATEとして拒否される。
func (s RentalApplicationStatus) IsTerminal() bool {
	return s == RentalStatusApproved || s == RentalStatusRejected
}

// ParseDecisionStatus は決定操作で受け付ける状態遷移先を検証する。
// under_review / approved / rejected のみ有効。
func ParseDecisionStatus(value string) (RentalApplicationStatus, bool) {
	switch RentalApplicationStatus(value) {
	case RentalStatusUnderReview, RentalStatusApproved, RentalStatusRejected:
		return RentalApplicationStatus(value), true
	}
	return "", false
}

// ParseRentalApplicationStatus は一覧フィルタで受け付ける状態値を検証する。
func ParseRentalApplicationStatus(value string) (RentalApplicationStatus, bool) {
	switch RentalApplicationStatus(value) {
	case RentalStatusDraft, RentalStatusSubmitted, RentalStatusUnderReview,
		RentalStatusApproved, RentalStatusRejected, RentalStatusWithdrawn:
		return RentalApplicationStatus(value), true
	}
	return "", false
}

// RentalApplication は物件への賃貸申込を表す。
type RentalApplication struct {
	ID              string
	PropertyID      string
	ApplicantUserID string
	Status          RentalApplicationStatus
	SubmittedAt     *time.Time
	DecidedAt       *time.Time
	DecidedByUserID *string
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RentalApplicationSnapshot は提出時点の申込内容をそのまま保存する。
type RentalApplicationSnapshot struct {
	ID                  string
	RentalApplicationID string
	SubmittedPayload    json.RawMessage
	CreatedAt           time.Time
}

// RentalApplicationDocument は申込に添付されたドキュメントのURLを表す。
type RentalApplicationDocument struct {
	ID                  string
	RentalApplicationID string
	FileURL             string
	Metadata            json.RawMessage
	CreatedAt           time.Time
	DeletedAt           *time.Time
}
