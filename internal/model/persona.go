// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Role はユーザーが保持できるペルソナ（役割）を表す。
// 1アカウントが複数のペルソナを同時に保持できる。
type Role string

const (
	// RoleRenter は賃貸検索ユーザー。新規ユーザーのデフォルトペルソナ。
	RoleRenter Role = "renter"
	// RoleBuyer は購入検討ユーザー。
	RoleBuyer Role = "buyer"
	// RoleSeller は売却ユーザー。
	RoleSeller Role = "seller"
	// RoleAgent は不動産エージェント。組織（エージェンシー）に所属できる。
	RoleAgent Role = "agent"
)

// DefaultRole はペルソナ未設定ユーザーに割り当てるデフォルトペルソナ。
const DefaultRole = RoleRenter

// AllRoles は認証フローで受け付ける全ペルソナの一覧。
var AllRoles = []Role{RoleRenter, RoleBuyer, RoleSeller, RoleAgent}

// ParseRole は文字列をRoleに変換する。認識できない値の場合はfalseを返す。
// ロールのバリデーションは境界（ハンドラー）で1回だけ行う。
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleRenter, RoleBuyer, RoleSeller, RoleAgent:
		return Role(value), true
	}
	return "", false
}

// PrimaryRole はユーザーの主ペルソナレコードを表す。
// ユーザーごとに0行または1行。行が存在しないことは「未割り当て」を意味し、
// エラー状態ではない（解決エンジンがデフォルトを合成する）。
type PrimaryRole struct {
	UserID    string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleMembership はユーザーが保持するペルソナの集合の1要素を表す。
// (user_id, role) で一意。通常フローでは追加のみで削除されない。
type RoleMembership struct {
	ID             string
	UserID         string
	Role           Role
	OrganizationID *string
	CreatedAt      time.Time
}

// RoleAssignment は組織コンテキスト付きのペルソナ割り当てレコードを表す。
// 論理削除（deleted_at）をサポートする。
// 不変条件: 未削除行のうちis_primary = trueは1ユーザーにつき最大1行。
type RoleAssignment struct {
	ID             string
	UserID         string
	OrganizationID *string
	Role           Role
	IsPrimary      bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PersonaMetadata はプロフィールに付随する自由形式メタデータのうち、
// ペルソナ管理が関与するキーを型付きで表す。
// 未知のキーはExtraに保持され、読み書きのラウンドトリップで失われない。
type PersonaMetadata struct {
	OnboardingCompletedRoles []Role
	LastIntendedRole         *Role
	Extra                    map[string]json.RawMessage
}

// metadataキー名。保存形式（jsonb）のキーと一致させる。
const (
	metadataKeyOnboardingCompletedRoles = "onboardingCompletedRoles"
	metadataKeyLastIntendedRole         = "lastIntendedRole"
)

// UnmarshalJSON は保存されたjsonbを正規化しながら読み込む。
// 過去バージョンや部分的に壊れた値を許容する:
// 認識できないロール値は除外し、形の合わないフィールドはゼロ値に落とす。
func (m *PersonaMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		// オブジェクトでない値は空メタデータとして扱う
		*m = PersonaMetadata{}
		return nil
	}

	result := PersonaMetadata{
		Extra: map[string]json.RawMessage{},
	}

	for key, value := range raw {
		switch key {
		case metadataKeyOnboardingCompletedRoles:
			var values []string
			if err := json.Unmarshal(value, &values); err == nil {
				for _, v := range values {
					if role, ok := ParseRole(v); ok {
						result.OnboardingCompletedRoles = append(result.OnboardingCompletedRoles, role)
					}
				}
			}
		case metadataKeyLastIntendedRole:
			var v string
			if err := json.Unmarshal(value, &v); err == nil {
				if role, ok := ParseRole(v); ok {
					result.LastIntendedRole = &role
				}
			}
		default:
			result.Extra[key] = value
		}
	}

	*m = result
	return nil
}

// MarshalJSON は既知キーと未知キーをマージして保存形式に変換する。
func (m PersonaMetadata) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for key, value := range m.Extra {
		merged[key] = value
	}

	completed := m.OnboardingCompletedRoles
	if completed == nil {
		completed = []Role{}
	}
	completedJSON, err := json.Marshal(completed)
	if err != nil {
		return nil, err
	}
	merged[metadataKeyOnboardingCompletedRoles] = completedJSON

	intendedJSON, err := json.Marshal(m.LastIntendedRole)
	if err != nil {
		return nil, err
	}
	merged[metadataKeyLastIntendedRole] = intendedJSON

	return json.Marshal(merged)
}

// HasCompletedOnboarding は指定ロールのオンボーディングが完了済みかを返す。
func (m PersonaMetadata) HasCompletedOnboarding(role Role) bool {
	for _, r := range m.OnboardingCompletedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AddCompletedRole はオンボーディング完了ロールを集合として追加する（重複なし）。
func (m *PersonaMetadata) AddCompletedRole(role Role) {
	if m.HasCompletedOnboarding(role) {
		return
	}
	m.OnboardingCompletedRoles = append(m.OnboardingCompletedRoles, role)
}

// PersonaState は3つのロールテーブルとメタデータを集約した読み取り専用スナップショット。
type PersonaState struct {
	PrimaryRole *Role
	Roles       []Role
	Metadata    PersonaMetadata
}

// HasRole は指定ロールが保持ペルソナ集合に含まれるかを返す。
func (s PersonaState) HasRole(role Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
