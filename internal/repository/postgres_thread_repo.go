package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/estately/internal/model"
)

// PostgresThreadRepo はPostgreSQLを使用した物件スレッドリポジトリ。
type PostgresThreadRepo struct {
	db *sql.DB
}

// NewPostgresThreadRepo はPostgresThreadRepoを生成する。
func NewPostgresThreadRepo(db *sql.DB) *PostgresThreadRepo {
	return &PostgresThreadRepo{db: db}
}

// CreateThread はスレッドを作成し、採番されたIDとcreated_atを書き戻す。
func (r *PostgresThreadRepo) CreateThread(ctx context.Context, q Queryer, thread *model.PropertyThread) error {
	if thread.ID == "" {
		thread.ID = uuid.New().String()
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO property_threads (id, property_id, created_by_user_id, organization_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		thread.ID, thread.PropertyID, thread.CreatedByUserID, thread.OrganizationID,
	).Scan(&thread.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert property thread: %w", err)
	}

	return nil
}

// AddParticipants は参加者をまとめて登録する。既登録の組は無視する。
func (r *PostgresThreadRepo) AddParticipants(ctx context.Context, q Queryer, participants []model.ThreadParticipant) error {
	for i := range participants {
		p := &participants[i]
		_, err := q.ExecContext(ctx,
			`INSERT INTO thread_participants (thread_id, user_id, role)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (thread_id, user_id) DO NOTHING`,
			p.ThreadID, p.UserID, p.Role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert thread participant: %w", err)
		}
	}

	return nil
}

// FindParticipant はスレッドのアクティブな参加者を取得する。
// 未参加または離脱済みの場合はnilを返す。
func (r *PostgresThreadRepo) FindParticipant(ctx context.Context, threadID, userID string) (*model.ThreadParticipant, error) {
	p := &model.ThreadParticipant{}
	err := r.db.QueryRowContext(ctx,
		`SELECT thread_id, user_id, role, joined_at
		 FROM thread_participants
		 WHERE thread_id = $1 AND user_id = $2 AND left_at IS NULL`,
		threadID, userID,
	).Scan(&p.ThreadID, &p.UserID, &p.Role, &p.JoinedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thread participant: %w", err)
	}

	return p, nil
}

// ListParticipants はスレッドのアクティブな参加者をすべて返す。
func (r *PostgresThreadRepo) ListParticipants(ctx context.Context, q Queryer, threadID string) ([]model.ThreadParticipant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT thread_id, user_id, role, joined_at
		 FROM thread_participants
		 WHERE thread_id = $1 AND left_at IS NULL
		 ORDER BY joined_at ASC, user_id ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread participants: %w", err)
	}
	defer rows.Close()

	var participants []model.ThreadParticipant
	for rows.Next() {
		var p model.ThreadParticipant
		if err := rows.Scan(&p.ThreadID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thread participants: %w", err)
	}

	return participants, nil
}

// CreateMessage はメッセージを保存し、採番されたIDとcreated_atを書き戻す。
func (r *PostgresThreadRepo) CreateMessage(ctx context.Context, q Queryer, message *model.ThreadMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	metadata := message.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO thread_messages (id, thread_id, sender_user_id, message_type, body, metadata_json)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		message.ID, message.ThreadID, message.SenderUserID, message.MessageType, message.Body, metadata,
	).Scan(&message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert thread message: %w", err)
	}

	return nil
}

// TouchLastMessageAt はスレッドの最終メッセージ時刻を更新する。
func (r *PostgresThreadRepo) TouchLastMessageAt(ctx context.Context, q Queryer, threadID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE property_threads SET last_message_at = $2 WHERE id = $1`,
		threadID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch thread last_message_at: %w", err)
	}

	return nil
}

// UpsertReadState はユーザーの既読位置を更新する。
func (r *PostgresThreadRepo) UpsertReadState(ctx context.Context, q Queryer, state *model.MessageReadState) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO message_read_states (thread_id, user_id, last_read_message_id, last_read_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (thread_id, user_id)
		 DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id, last_read_at = now()`,
		state.ThreadID, state.UserID, state.LastReadMessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message read state: %w", err)
	}

	return nil
}

// ListByPropertyWithUnread は指定物件のスレッド一覧を、actorUserIDが
// 参加しているものに限定し未読件数付きで返す。
// 未読件数は自分以外の送信者のメッセージのうち、既読時刻以降のものを数える。
func (r *PostgresThreadRepo) ListByPropertyWithUnread(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.property_id, t.created_by_user_id, t.organization_id,
		        t.last_message_at, t.archived_at, t.created_at,
		        (SELECT count(*) FROM thread_messages m
		         WHERE m.thread_id = t.id
		           AND m.deleted_at IS NULL
		           AND m.sender_user_id <> $1
		           AND m.created_at > COALESCE(
		               (SELECT rs.last_read_at FROM message_read_states rs
		                WHERE rs.thread_id = t.id AND rs.user_id = $1),
		               '-infinity'::timestamptz)) AS unread_count
		 FROM property_threads t
		 INNER JOIN thread_participants p
		         ON p.thread_id = t.id AND p.user_id = $1 AND p.left_at IS NULL
		 WHERE t.property_id = $2 AND t.archived_at IS NULL
		 ORDER BY t.last_message_at DESC NULLS LAST, t.created_at DESC
		 LIMIT $3`,
		actorUserID, propertyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list property threads: %w", err)
	}
	defer rows.Close()

	var threads []model.ThreadWithUnread
	for rows.Next() {
		tw := model.ThreadWithUnread{}
		var organizationID sql.NullString
		var lastMessageAt, archivedAt sql.NullTime

		if err := rows.Scan(
			&tw.ID, &tw.PropertyID, &tw.CreatedByUserID, &organizationID,
			&lastMessageAt, &archivedAt, &tw.CreatedAt, &tw.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property thread: %w", err)
		}

		if organizationID.Valid {
			tw.OrganizationID = &organizationID.String
		}
		if lastMessageAt.Valid {
			tw.LastMessageAt = &lastMessageAt.Time
		}
		if archivedAt.Valid {
			tw.ArchivedAt = &archivedAt.Time
		}
		threads = append(threads, tw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate property threads: %w", err)
	}

	return threads, nil
}

// compile-time interface check
var _ ThreadRepository = (*PostgresThreadRepo)(nil)
