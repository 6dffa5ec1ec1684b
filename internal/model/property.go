package model

import "time"

// Property は物件を表す。コアが必要とするのは所有関係と論理削除状態のみで、
// 物件の詳細属性（住所、価格等）は外部コラボレータが管理する。
type Property struct {
	ID          string
	OwnerUserID string
	AgentUserID *string
	Title       string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanModerate は指定ユーザーがこの物件のオーナーまたは担当エージェントかを返す。
// 賃貸申込の閲覧・決定権限の判定に使用する。
func (p *Property) CanModerate(userID string) bool {
	if p.OwnerUserID == userID {
		return true
	}
	return p.AgentUserID != nil && *p.AgentUserID == userID
}
