package persona

import "github.com/hitoshi/estately/internal/model"

// DestinationOptions はルーティング判定に必要なコンテキスト。
type DestinationOptions struct {
	ActiveOrganizationID     *string
	OnboardingCompletedRoles []model.Role
	PendingAgentInviteID     *string
}

// OnboardingPath は指定ペルソナのオンボーディング画面のパスを返す。
func OnboardingPath(role model.Role) string {
	return "/onboarding/" + string(role)
}

// PersonaDestination はオンボーディング完了済みペルソナのデフォルト着地先を返す。
func PersonaDestination(role model.Role, activeOrganizationID *string) string {
	switch role {
	case model.RoleSeller:
		return "/dashboard/properties/create"
	case model.RoleAgent:
		if activeOrganizationID != nil {
			return "/dashboard/organizations"
		}
		return "/dashboard"
	}
	return "/"
}

// ResolveDestination は認証後の着地先を決める純粋関数。
// 優先順位: エージェントの保留中招待 > 未完了オンボーディング > ロール別デフォルト。
func ResolveDestination(role model.Role, opts DestinationOptions) string {
	if role == model.RoleAgent && opts.PendingAgentInviteID != nil {
		return "/dashboard/organizations/invites/" + *opts.PendingAgentInviteID
	}

	for _, completed := range opts.OnboardingCompletedRoles {
		if completed == role {
			return PersonaDestination(role, opts.ActiveOrganizationID)
		}
	}

	return OnboardingPath(role)
}
