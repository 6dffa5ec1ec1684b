package persona

import (
	"context"

	"github.com/hitoshi/estately/internal/model"
)

// ActionResult はペルソナ操作後の遷移先を表す。
type ActionResult struct {
	Destination string
}

// AddPersonaToCurrentUser は認証済みユーザーにペルソナを追加する。
// 主ペルソナは切り替えず、追加したペルソナのオンボーディング画面へ誘導する。
// ロール値の検証は境界で完了している前提。
func (r *Resolver) AddPersonaToCurrentUser(ctx context.Context, userID string, role model.Role) (*ActionResult, error) {
	if err := r.store.PersistPersonaForUser(ctx, userID, role, PersistOptions{
		SetPrimary:   false,
		IntendedRole: &role,
	}); err != nil {
		return nil, err
	}

	return &ActionResult{Destination: OnboardingPath(role)}, nil
}

// CompletePersonaOnboarding は指定ペルソナのオンボーディング完了を記録し、
// そのペルソナのデフォルト着地先を返す。
func (r *Resolver) CompletePersonaOnboarding(ctx context.Context, userID string, role model.Role, activeOrganizationID *string) (*ActionResult, error) {
	if err := r.store.MarkPersonaOnboardingComplete(ctx, userID, role); err != nil {
		return nil, err
	}

	return &ActionResult{Destination: PersonaDestination(role, activeOrganizationID)}, nil
}
