// Package persona はペルソナ（ロール）管理と認証後ルーティングのドメインロジックを提供する。
package persona

import (
	"context"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
)

// PersistOptions はPersistPersonaForUserの動作オプション。
type PersistOptions struct {
	// SetPrimary がtrueの場合、主ペルソナをこのロールに切り替え、
	// 他の未削除割り当てのis_primaryを同一トランザクション内で降格する。
	SetPrimary bool

	// IntendedRole が指定された場合、メタデータのlastIntendedRoleを更新する。
	// nilの場合は既存値を保持する。
	IntendedRole *model.Role
}

// Store はペルソナ3テーブルとプロフィールメタデータのサービス層。
type Store struct {
	personaRepo repository.PersonaRepository
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(personaRepo repository.PersonaRepository) *Store {
	return &Store{personaRepo: personaRepo}
}

// GetPersonaState は主ロール・保持ロール集合・メタデータを集約して返す。
// ロール値の検証は行わない（境界の責務）。
func (s *Store) GetPersonaState(ctx context.Context, userID string) (*model.PersonaState, error) {
	primary, err := s.personaRepo.FindPrimaryRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("主ペルソナの取得に失敗しました: %w", err)
	}

	roles, err := s.personaRepo.ListRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ペルソナ集合の取得に失敗しました: %w", err)
	}

	metadata, err := s.readMetadata(ctx, userID)
	if err != nil {
		return nil, err
	}

	state := &model.PersonaState{
		Roles:    roles,
		Metadata: metadata,
	}
	if primary != nil {
		role := primary.Role
		state.PrimaryRole = &role
	}

	return state, nil
}

// PersistPersonaForUser はペルソナを冪等にUPSERTする。
// 同一引数で2回呼んでも最終状態は変わらない。
// ロールテーブルの書き込みは1トランザクション、メタデータ更新はその後に行う。
func (s *Store) PersistPersonaForUser(ctx context.Context, userID string, role model.Role, opts PersistOptions) error {
	if err := s.personaRepo.PersistPersona(ctx, userID, role, opts.SetPrimary); err != nil {
		return fmt.Errorf("ペルソナの保存に失敗しました: %w", err)
	}

	return s.updateMetadata(ctx, userID, func(m *model.PersonaMetadata) {
		if opts.IntendedRole != nil {
			intended := *opts.IntendedRole
			m.LastIntendedRole = &intended
		}
	})
}

// MarkPersonaOnboardingComplete は指定ロールをオンボーディング完了集合に
// 追加し、lastIntendedRoleを同ロールに設定する。
func (s *Store) MarkPersonaOnboardingComplete(ctx context.Context, userID string, role model.Role) error {
	return s.updateMetadata(ctx, userID, func(m *model.PersonaMetadata) {
		m.AddCompletedRole(role)
		r := role
		m.LastIntendedRole = &r
	})
}

// SetLastIntendedRole はlastIntendedRoleのみを更新する。nilでクリアできる。
func (s *Store) SetLastIntendedRole(ctx context.Context, userID string, role *model.Role) error {
	return s.updateMetadata(ctx, userID, func(m *model.PersonaMetadata) {
		m.LastIntendedRole = role
	})
}

// readMetadata は最新プロフィールのメタデータを返す。
// プロフィール未作成の場合は空メタデータを返す（遅延作成のため）。
func (s *Store) readMetadata(ctx context.Context, userID string) (model.PersonaMetadata, error) {
	profile, err := s.personaRepo.FindLatestProfile(ctx, userID)
	if err != nil {
		return model.PersonaMetadata{}, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return model.PersonaMetadata{}, nil
	}
	return profile.Metadata, nil
}

// updateMetadata は最新プロフィールのメタデータを読み取り、mutateを適用して
// 書き戻す。プロフィールが存在しない場合は新規作成する（マージであり差し替えではない）。
func (s *Store) updateMetadata(ctx context.Context, userID string, mutate func(*model.PersonaMetadata)) error {
	profile, err := s.personaRepo.FindLatestProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	if profile == nil {
		metadata := model.PersonaMetadata{}
		mutate(&metadata)
		if err := s.personaRepo.CreateProfile(ctx, userID, metadata); err != nil {
			return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
		}
		return nil
	}

	mutate(&profile.Metadata)
	if err := s.personaRepo.UpdateProfileMetadata(ctx, profile.ID, profile.Metadata); err != nil {
		return fmt.Errorf("メタデータの更新に失敗しました: %w", err)
	}
	return nil
}
