package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/estately/internal/model"
)

// PostgresPersonaRepo はPostgreSQLを使用したペルソナリポジトリ。
// 主ロール（user_primary_roles）、メンバーシップ（user_role_memberships）、
// 割り当て（user_role_assignments）、プロフィールメタデータ（user_profiles）を管理する。
type PostgresPersonaRepo struct {
	db *sql.DB
}

// NewPostgresPersonaRepo はPostgresPersonaRepoを生成する。
func NewPostgresPersonaRepo(db *sql.DB) *PostgresPersonaRepo {
	return &PostgresPersonaRepo{db: db}
}

// FindPrimaryRole はユーザーの主ペルソナレコードを取得する。
// 行が存在しない場合はnilを返す（未割り当ては正常状態）。
func (r *PostgresPersonaRepo) FindPrimaryRole(ctx context.Context, userID string) (*model.PrimaryRole, error) {
	primary := &model.PrimaryRole{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, created_at, updated_at FROM user_primary_roles WHERE user_id = $1`,
		userID,
	).Scan(&primary.UserID, &primary.Role, &primary.CreatedAt, &primary.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find primary role: %w", err)
	}

	return primary, nil
}

// ListRoles はユーザーが保持するペルソナ集合を重複なしで返す。
func (r *PostgresPersonaRepo) ListRoles(ctx context.Context, userID string) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT role FROM user_role_memberships WHERE user_id = $1 ORDER BY role`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, nil
}

// PersistPersona は主ロール・メンバーシップ・割り当ての3テーブルを
// 1つのトランザクションで冪等にUPSERTする。
//
// 同一ユーザーに対する並行呼び出し（複数タブでの同時ログイン完了など）は
// ON CONFLICTによる衝突安全なUPSERTで単一行に収束する。ロックは使用しない。
func (r *PostgresPersonaRepo) PersistPersona(ctx context.Context, userID string, role model.Role, setPrimary bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 主ロールのUPSERT
	if setPrimary {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_primary_roles (user_id, role)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
			userID, role,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert primary role: %w", err)
		}

		// 2. 他の未削除割り当てを1文で一括降格する。
		// 割り当ての昇格（手順4）と同一トランザクションで完結するため、
		// コミット後に主割り当てが2行見える瞬間は存在しない。
		_, err = tx.ExecContext(ctx,
			`UPDATE user_role_assignments
			 SET is_primary = FALSE, updated_at = now()
			 WHERE user_id = $1 AND deleted_at IS NULL AND is_primary`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to demote prior primary assignments: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_primary_roles (user_id, role)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID, role,
		)
		if err != nil {
			return fmt.Errorf("failed to ensure primary role: %w", err)
		}
	}

	// 3. メンバーシップのinsert-if-absent
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_role_memberships (id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, role) DO NOTHING`,
		uuid.New().String(), userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure role membership: %w", err)
	}

	// 4. 割り当ての確保。未削除行を検索し、存在すれば必要に応じて昇格、
	// 存在しなければ新規作成する。
	var assignmentID string
	var isPrimary bool
	err = tx.QueryRowContext(ctx,
		`SELECT id, is_primary FROM user_role_assignments
		 WHERE user_id = $1 AND role = $2 AND deleted_at IS NULL
		 ORDER BY created_at
		 LIMIT 1`,
		userID, role,
	).Scan(&assignmentID, &isPrimary)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_role_assignments (id, user_id, role, is_primary)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), userID, role, setPrimary,
		)
		if err != nil {
			return fmt.Errorf("failed to insert role assignment: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to find role assignment: %w", err)
	default:
		if setPrimary && !isPrimary {
			_, err = tx.ExecContext(ctx,
				`UPDATE user_role_assignments
				 SET is_primary = TRUE, updated_at = now()
				 WHERE id = $1`,
				assignmentID,
			)
			if err != nil {
				return fmt.Errorf("failed to promote role assignment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindLatestProfile はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresPersonaRepo) FindLatestProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile := &model.UserProfile{}
	var metadataJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, metadata, created_at, updated_at
		 FROM user_profiles
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&profile.ID, &profile.UserID, &metadataJSON, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	// 保存値の正規化はPersonaMetadata.UnmarshalJSONが行う
	if err := json.Unmarshal(metadataJSON, &profile.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode profile metadata: %w", err)
	}

	return profile, nil
}

// CreateProfile はプロフィールを新規作成する（メタデータの遅延作成）。
func (r *PostgresPersonaRepo) CreateProfile(ctx context.Context, userID string, metadata model.PersonaMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode profile metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, user_id, metadata) VALUES ($1, $2, $3)`,
		uuid.New().String(), userID, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// UpdateProfileMetadata は指定プロフィールのメタデータを差し替える。
// 既知キーと未知キーのマージはPersonaMetadata.MarshalJSONが保証する。
func (r *PostgresPersonaRepo) UpdateProfileMetadata(ctx context.Context, profileID string, metadata model.PersonaMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode profile metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE user_profiles SET metadata = $2, updated_at = now() WHERE id = $1`,
		profileID, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile metadata: %w", err)
	}

	return nil
}

// compile-time interface check
var _ PersonaRepository = (*PostgresPersonaRepo)(nil)
