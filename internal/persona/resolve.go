package persona

import (
	"context"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
)

// OutcomeKind は認証後解決の終端結果の種別。
type OutcomeKind string

const (
	// OutcomeRedirect は解決されたペルソナへそのまま遷移する結果。
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomeInterstitial は意図されたペルソナを保持していないため、
	// 継続かペルソナ追加かの選択をユーザーに求める結果。
	OutcomeInterstitial OutcomeKind = "interstitial"
)

// Resolution は認証後解決の結果。
// KindがOutcomeRedirectの場合はPersona/Destinationが、
// OutcomeInterstitialの場合はIntendedRole/PrimaryRole/ContinueDestinationが設定される。
type Resolution struct {
	Kind OutcomeKind

	// redirect
	Persona     model.Role
	Destination string

	// interstitial
	IntendedRole        model.Role
	PrimaryRole         model.Role
	ContinueDestination string
}

// ResolveInput は認証後解決のパラメータ。認証完了リクエストごとに1回呼ばれる。
type ResolveInput struct {
	UserID               string
	Email                string
	IntendedRole         *model.Role
	ActiveOrganizationID *string
}

// Resolver は認証後のペルソナ解決エンジン。
// グローバル状態を持たず、依存はすべて注入される。
type Resolver struct {
	userRepo       repository.UserRepository
	invitationRepo repository.InvitationRepository
	store          *Store
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(
	userRepo repository.UserRepository,
	invitationRepo repository.InvitationRepository,
	store *Store,
) *Resolver {
	return &Resolver{
		userRepo:       userRepo,
		invitationRepo: invitationRepo,
		store:          store,
	}
}

// ResolvePostAuthFlow は認証完了後の着地先を決定する状態機械を実行する。
//
// 1. ユーザー行の存在確認（存在しなければInvalidSessionUserError）
// 2. 主ペルソナがなければデフォルト（intendedRole、なければrenter）を割り当て
// 3. 主ペルソナがロール集合に含まれない場合の自己修復
// 4. 意図ロールの決定（パラメータ、なければ主ペルソナ）
// 5. 意図ロールがagentの場合、保留中の組織招待を検索
// 6. lastIntendedRoleを無条件に記録
// 7. 意図ロールの保持有無でredirect / interstitialに分岐
func (r *Resolver) ResolvePostAuthFlow(ctx context.Context, input ResolveInput) (*Resolution, error) {
	state, err := r.ensureBaseline(ctx, input.UserID, input.IntendedRole)
	if err != nil {
		return nil, err
	}

	primaryRole := model.DefaultRole
	if state.PrimaryRole != nil {
		primaryRole = *state.PrimaryRole
	}

	// 主ペルソナレコードはあるがmembership/assignment行が欠けている場合のみ修復する。
	// 逆方向（membershipのみ存在）の不整合は対象外。
	if !state.HasRole(primaryRole) {
		intended := input.IntendedRole
		if intended == nil {
			intended = &primaryRole
		}
		if err := r.store.PersistPersonaForUser(ctx, input.UserID, primaryRole, PersistOptions{
			SetPrimary:   true,
			IntendedRole: intended,
		}); err != nil {
			return nil, err
		}
		state, err = r.store.GetPersonaState(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		if state.PrimaryRole != nil {
			primaryRole = *state.PrimaryRole
		}
	}

	intendedRole := primaryRole
	if input.IntendedRole != nil {
		intendedRole = *input.IntendedRole
	}

	var pendingAgentInviteID *string
	if intendedRole == model.RoleAgent {
		pendingAgentInviteID, err = r.findPendingAgentInviteID(ctx, input.Email)
		if err != nil {
			return nil, err
		}
	}

	// リダイレクト経路でも必ず意図を記録する
	if err := r.store.SetLastIntendedRole(ctx, input.UserID, &intendedRole); err != nil {
		return nil, err
	}

	if state.HasRole(intendedRole) {
		return &Resolution{
			Kind:    OutcomeRedirect,
			Persona: intendedRole,
			Destination: ResolveDestination(intendedRole, DestinationOptions{
				ActiveOrganizationID:     input.ActiveOrganizationID,
				OnboardingCompletedRoles: state.Metadata.OnboardingCompletedRoles,
				PendingAgentInviteID:     pendingAgentInviteID,
			}),
		}, nil
	}

	// 主ペルソナ側の継続先を計算する。主ペルソナがagentの場合は招待を再検索する。
	var primaryInviteID *string
	if primaryRole == model.RoleAgent {
		primaryInviteID, err = r.findPendingAgentInviteID(ctx, input.Email)
		if err != nil {
			return nil, err
		}
	}

	return &Resolution{
		Kind:         OutcomeInterstitial,
		IntendedRole: intendedRole,
		PrimaryRole:  primaryRole,
		ContinueDestination: ResolveDestination(primaryRole, DestinationOptions{
			ActiveOrganizationID:     input.ActiveOrganizationID,
			OnboardingCompletedRoles: state.Metadata.OnboardingCompletedRoles,
			PendingAgentInviteID:     primaryInviteID,
		}),
	}, nil
}

// ensureBaseline はユーザー行の存在を確認し、主ペルソナがなければ
// デフォルトを割り当てた上で最新の状態を返す。
func (r *Resolver) ensureBaseline(ctx context.Context, userID string, intendedRole *model.Role) (*model.PersonaState, error) {
	user, err := r.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの確認に失敗しました: %w", err)
	}
	if user == nil {
		// セッショントークンが残っているがユーザー行が削除されているケース。
		// 呼び出し側は強制サインアウトで対処する。
		return nil, &model.InvalidSessionUserError{UserID: userID}
	}

	state, err := r.store.GetPersonaState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state.PrimaryRole != nil {
		return state, nil
	}

	fallbackRole := model.DefaultRole
	if intendedRole != nil {
		fallbackRole = *intendedRole
	}
	if err := r.store.PersistPersonaForUser(ctx, userID, fallbackRole, PersistOptions{
		SetPrimary:   true,
		IntendedRole: &fallbackRole,
	}); err != nil {
		return nil, err
	}

	return r.store.GetPersonaState(ctx, userID)
}

// findPendingAgentInviteID はメールアドレス宛の保留中組織招待のIDを返す。
// 有効期限が最も遅いものを選び、同一期限の場合はID降順で決定的に選択する。
func (r *Resolver) findPendingAgentInviteID(ctx context.Context, email string) (*string, error) {
	invite, err := r.invitationRepo.FindPendingByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("組織招待の取得に失敗しました: %w", err)
	}
	if invite == nil {
		return nil, nil
	}
	id := invite.ID
	return &id, nil
}
