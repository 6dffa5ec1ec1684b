package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/estately/internal/model"
)

// PostgresPropertyRepo はPostgreSQLを使用した物件リポジトリ。
// コアは所有関係（オーナー/担当エージェント）の解決のみ行う。
type PostgresPropertyRepo struct {
	db *sql.DB
}

// NewPostgresPropertyRepo はPostgresPropertyRepoを生成する。
func NewPostgresPropertyRepo(db *sql.DB) *PostgresPropertyRepo {
	return &PostgresPropertyRepo{db: db}
}

// FindByID は指定IDの物件を取得する。
// 見つからない場合と論理削除済みの場合はnilを返す。
func (r *PostgresPropertyRepo) FindByID(ctx context.Context, q Queryer, id string) (*model.Property, error) {
	property := &model.Property{}
	var agentUserID sql.NullString
	var deletedAt sql.NullTime

	err := q.QueryRowContext(ctx,
		`SELECT id, owner_user_id, agent_user_id, title, deleted_at, created_at, updated_at
		 FROM properties WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(
		&property.ID, &property.OwnerUserID, &agentUserID,
		&property.Title, &deletedAt, &property.CreatedAt, &property.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find property: %w", err)
	}

	if agentUserID.Valid {
		property.AgentUserID = &agentUserID.String
	}
	if deletedAt.Valid {
		property.DeletedAt = &deletedAt.Time
	}

	return property, nil
}

// compile-time interface check
var _ PropertyRepository = (*PostgresPropertyRepo)(nil)
