package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/estately/internal/model"
)

// PostgresEventRepoはEventRepositoryインターフェースを満たすことを検証
func TestPostgresEventRepo_ImplementsInterface(t *testing.T) {
	var _ EventRepository = (*PostgresEventRepo)(nil)
}

// PostgresOutboxRepoはOutboxRepositoryインターフェースを満たすことを検証
func TestPostgresOutboxRepo_ImplementsInterface(t *testing.T) {
	var _ OutboxRepository = (*PostgresOutboxRepo)(nil)
}

// NewPostgresEventRepoが正しく初期化されることを検証
func TestNewPostgresEventRepo_Initializes(t *testing.T) {
	repo := NewPostgresEventRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresOutboxRepoが正しく初期化されることを検証
func TestNewPostgresOutboxRepo_Initializes(t *testing.T) {
	repo := NewPostgresOutboxRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 新規アウトボックスエントリの初期状態がpending・試行0回であることを検証
func TestPostgresOutboxRepo_NewEntry_InitialState(t *testing.T) {
	entry := &model.EventOutboxEntry{
		ID:      "entry-1",
		EventID: "event-1",
		Channel: model.ChannelInApp,
		Status:  model.OutboxStatusPending,
	}

	if entry.Status != model.OutboxStatusPending {
		t.Errorf("entry.Status = %q, want %q", entry.Status, model.OutboxStatusPending)
	}
	if entry.AttemptCount != 0 {
		t.Errorf("entry.AttemptCount = %d, want 0", entry.AttemptCount)
	}
	if entry.NextAttemptAt != nil {
		t.Error("next_attempt_at should be nil for a new entry")
	}
}

// next_attempt_atが未来のエントリはdueではないことの期待動作
func TestPostgresOutboxRepo_ClaimDue_FutureEntry_Concept(t *testing.T) {
	future := time.Now().Add(5 * time.Minute)
	entry := &model.EventOutboxEntry{
		ID:            "entry-2",
		NextAttemptAt: &future,
	}

	now := time.Now()
	if !entry.NextAttemptAt.After(now) {
		t.Error("expected next_attempt_at to be in the future")
	}
}
