package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/estately/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create はアプリ内通知レコードを保存する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, notification *model.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	data := notification.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (id, user_id, organization_id, type, title, body, data_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		notification.ID, notification.UserID, notification.OrganizationID,
		notification.Type, notification.Title, notification.Body, data,
	).Scan(&notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListByUser はユーザーの通知をcreated_at降順・ID降順のカーソル
// ページネーションで返す。limit+1件取得しhasMoreを判定する。
func (r *PostgresNotificationRepo) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error) {
	query := `SELECT id, user_id, organization_id, type, title, body, data_json, read_at, created_at
	          FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if cursor != "" {
		args = append(args, cursor)
		query += ` AND id < $2`
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		var organizationID sql.NullString
		var readAt sql.NullTime

		if err := rows.Scan(
			&n.ID, &n.UserID, &organizationID, &n.Type, &n.Title, &n.Body,
			&n.Data, &readAt, &n.CreatedAt,
		); err != nil {
			return nil, false, fmt.Errorf("failed to scan notification: %w", err)
		}

		if organizationID.Valid {
			n.OrganizationID = &organizationID.String
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	hasMore := len(notifications) > limit
	if hasMore {
		notifications = notifications[:limit]
	}

	return notifications, hasMore, nil
}

// UpsertPreference はユーザーのイベント種別ごとのチャネル設定を保存する。
func (r *PostgresNotificationRepo) UpsertPreference(ctx context.Context, pref *model.NotificationPreference) error {
	if pref.ID == "" {
		pref.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (id, user_id, event_type, in_app_enabled, email_enabled, push_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, event_type)
		 DO UPDATE SET in_app_enabled = EXCLUDED.in_app_enabled,
		               email_enabled = EXCLUDED.email_enabled,
		               push_enabled = EXCLUDED.push_enabled,
		               updated_at = now()`,
		pref.ID, pref.UserID, pref.EventType, pref.InAppEnabled, pref.EmailEnabled, pref.PushEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert notification preference: %w", err)
	}

	return nil
}

// FindPreference はユーザーのイベント種別設定を取得する。未設定の場合はnilを返す。
func (r *PostgresNotificationRepo) FindPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error) {
	pref := &model.NotificationPreference{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, event_type, in_app_enabled, email_enabled, push_enabled, created_at, updated_at
		 FROM notification_preferences WHERE user_id = $1 AND event_type = $2`,
		userID, eventType,
	).Scan(
		&pref.ID, &pref.UserID, &pref.EventType,
		&pref.InAppEnabled, &pref.EmailEnabled, &pref.PushEnabled,
		&pref.CreatedAt, &pref.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification preference: %w", err)
	}

	return pref, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
