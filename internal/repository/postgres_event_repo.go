package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/estately/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したドメインイベント/アウトボックスリポジトリ。
// 書き込みメソッドはQueryerを受け取り、呼び出し側のトランザクションに参加する。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// InsertEvent は不変のドメインイベントを1件挿入する。
// 採番されたIDとoccurred_atをeventに書き戻す。
func (r *PostgresEventRepo) InsertEvent(ctx context.Context, q Queryer, event *model.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO domain_events (id, event_type, aggregate_type, aggregate_id, payload_json)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING occurred_at`,
		event.ID, event.EventType, event.AggregateType, event.AggregateID, payload,
	).Scan(&event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert domain event: %w", err)
	}

	return nil
}

// InsertOutboxEntries はイベントに対するチャネルごとの配信意図を挿入する。
// すべてstatus = pending、attempt_count = 0で作成される。
func (r *PostgresEventRepo) InsertOutboxEntries(ctx context.Context, q Queryer, eventID string, channels []model.NotificationChannel) error {
	for _, channel := range channels {
		_, err := q.ExecContext(ctx,
			`INSERT INTO event_outbox (id, event_id, channel, status, attempt_count)
			 VALUES ($1, $2, $3, $4, 0)`,
			uuid.New().String(), eventID, channel, model.OutboxStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox entry (%s): %w", channel, err)
		}
	}

	return nil
}

// FindEventByID は指定IDのドメインイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindEventByID(ctx context.Context, id string) (*model.DomainEvent, error) {
	event := &model.DomainEvent{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_type, aggregate_type, aggregate_id, payload_json, occurred_at
		 FROM domain_events WHERE id = $1`,
		id,
	).Scan(
		&event.ID, &event.EventType, &event.AggregateType,
		&event.AggregateID, &event.Payload, &event.OccurredAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find domain event: %w", err)
	}

	return event, nil
}

// ListOutboxByEventID はイベントに紐づくアウトボックスエントリを返す。
func (r *PostgresEventRepo) ListOutboxByEventID(ctx context.Context, eventID string) ([]*model.EventOutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, channel, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
		 FROM event_outbox WHERE event_id = $1 ORDER BY created_at`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()

	return scanOutboxEntries(rows)
}

// scanOutboxEntries はアウトボックスエントリの行集合をスキャンする。
func scanOutboxEntries(rows *sql.Rows) ([]*model.EventOutboxEntry, error) {
	var entries []*model.EventOutboxEntry
	for rows.Next() {
		entry := &model.EventOutboxEntry{}
		var nextAttemptAt sql.NullTime
		if err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.Channel, &entry.Status,
			&entry.AttemptCount, &nextAttemptAt, &entry.LastError,
			&entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		if nextAttemptAt.Valid {
			entry.NextAttemptAt = &nextAttemptAt.Time
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox entries: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)

// PostgresOutboxRepo はディスパッチャ用のアウトボックス配信状態リポジトリ。
type PostgresOutboxRepo struct {
	db *sql.DB
}

// NewPostgresOutboxRepo はPostgresOutboxRepoを生成する。
func NewPostgresOutboxRepo(db *sql.DB) *PostgresOutboxRepo {
	return &PostgresOutboxRepo{db: db}
}

// ClaimDue は配信期限が到来したpendingエントリを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
// 複数ディスパッチャが並行稼働しても同一エントリを二重配信しない。
func (r *PostgresOutboxRepo) ClaimDue(ctx context.Context, tx Tx, limit int, now time.Time) ([]*model.EventOutboxEntry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, event_id, channel, status, attempt_count, next_attempt_at, last_error, created_at, updated_at
		 FROM event_outbox
		 WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		 ORDER BY created_at
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		model.OutboxStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due outbox entries: %w", err)
	}
	defer rows.Close()

	return scanOutboxEntries(rows)
}

// MarkSent はエントリを配信済みにする。
func (r *PostgresOutboxRepo) MarkSent(ctx context.Context, q Queryer, id string, attemptCount int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE event_outbox
		 SET status = $2, attempt_count = $3, last_error = '', updated_at = now()
		 WHERE id = $1`,
		id, model.OutboxStatusSent, attemptCount,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry sent: %w", err)
	}
	return nil
}

// MarkRetry は失敗したエントリに次回試行時刻とエラーを記録する。
// statusはpendingのまま維持し、next_attempt_at到来後に再取得される。
func (r *PostgresOutboxRepo) MarkRetry(ctx context.Context, q Queryer, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE event_outbox
		 SET attempt_count = $2, next_attempt_at = $3, last_error = $4, updated_at = now()
		 WHERE id = $1`,
		id, attemptCount, nextAttemptAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry for retry: %w", err)
	}
	return nil
}

// MarkFailed はリトライ上限に達したエントリを終端の失敗状態にする。
func (r *PostgresOutboxRepo) MarkFailed(ctx context.Context, q Queryer, id string, attemptCount int, lastError string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE event_outbox
		 SET status = $2, attempt_count = $3, last_error = $4, updated_at = now()
		 WHERE id = $1`,
		id, model.OutboxStatusFailed, attemptCount, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry failed: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OutboxRepository = (*PostgresOutboxRepo)(nil)
