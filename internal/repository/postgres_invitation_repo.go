package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
)

// PostgresInvitationRepo はPostgreSQLを使用した組織招待リポジトリ。
// 招待テーブルは外部コラボレータが所有し、コアは読み取りのみ行う。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

// FindPendingByEmail は指定メールアドレス宛の保留中招待のうち、
// 有効期限が最も遅いものを1件返す。見つからない場合はnilを返す。
// 有効期限が同一の場合は招待IDの降順で選択し、結果を決定的にする。
func (r *PostgresInvitationRepo) FindPendingByEmail(ctx context.Context, email string) (*model.Invitation, error) {
	invitation := &model.Invitation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, organization_id, status, expires_at, created_at
		 FROM invitations
		 WHERE email = $1 AND status = $2
		 ORDER BY expires_at DESC, id DESC
		 LIMIT 1`,
		email, model.InvitationStatusPending,
	).Scan(
		&invitation.ID, &invitation.Email, &invitation.OrganizationID,
		&invitation.Status, &invitation.ExpiresAt, &invitation.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}

	return invitation, nil
}

// compile-time interface check
var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
