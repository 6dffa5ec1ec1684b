// Package dispatch はイベントアウトボックスのバックグラウンド配信を提供する。
// ディスパッチャ、チャネルごとのノーティファイア、リトライ/バックオフ戦略を含む。
//
// 配信はat-least-once。エントリの取得はFOR UPDATE SKIP LOCKEDで行うため、
// 複数インスタンスが同時に動作しても同一エントリを重複して処理しない。
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/estately/internal/metrics"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
)

// Notifier は1チャネルの配信を実行するインターフェース。
type Notifier interface {
	// Deliver はイベントを配信する。エラーを返した場合はリトライ対象になる。
	Deliver(ctx context.Context, event *model.DomainEvent, entry *model.EventOutboxEntry) error
}

// EventPayload はディスパッチャが解釈するペイロードの共通フィールド。
// プロデューサーは通知先ユーザーIDをペイロードに埋め込む。
type EventPayload struct {
	RecipientUserIDs []string `json:"recipientUserIds"`
	Preview          string   `json:"preview"`
	PropertyID       string   `json:"propertyId"`
	ThreadID         string   `json:"threadId"`
	ApplicationID    string   `json:"applicationId"`
	Status           string   `json:"status"`
}

// ParsePayload はイベントペイロードから共通フィールドを取り出す。
func ParsePayload(event *model.DomainEvent) (*EventPayload, error) {
	payload := &EventPayload{}
	if len(event.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(event.Payload, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Dispatcher はアウトボックスエントリの取得と配信を行う。
// 一定間隔のティッカーで配信期限の到来したエントリを取得し、
// チャネルごとのノーティファイアで配信する。
type Dispatcher struct {
	txBeginner  repository.TxBeginner
	eventRepo   repository.EventRepository
	outboxRepo  repository.OutboxRepository
	notifiers   map[model.NotificationChannel]Notifier
	collector   metrics.MetricsCollector
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// batchSizeが0以下の場合はデフォルト値50、maxAttemptsが0以下の場合は
// デフォルト値5を使用する。
func NewDispatcher(
	txBeginner repository.TxBeginner,
	eventRepo repository.EventRepository,
	outboxRepo repository.OutboxRepository,
	notifiers map[model.NotificationChannel]Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	batchSize int,
	maxAttempts int,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Dispatcher{
		txBeginner:  txBeginner,
		eventRepo:   eventRepo,
		outboxRepo:  outboxRepo,
		notifiers:   notifiers,
		collector:   collector,
		logger:      logger,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Start は一定間隔のティッカーでディスパッチャを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("アウトボックスディスパッチャを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", d.batchSize),
		slog.Int("max_attempts", d.maxAttempts),
	)

	// 起動直後に1回実行
	if err := d.RunOnce(ctx); err != nil {
		d.logger.Error("配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("アウトボックスディスパッチャを停止しました")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配信期限の到来したエントリを1回取得し、順次配信する。
// 取得から状態更新までを1つのトランザクションで行い、
// ロック保持中のエントリが他インスタンスに取得されないようにする。
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	start := time.Now()

	tx, err := d.txBeginner.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entries, err := d.outboxRepo.ClaimDue(ctx, tx, d.batchSize, start)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return tx.Commit()
	}

	d.logger.Info("配信サイクルを開始します",
		slog.Int("entry_count", len(entries)),
	)

	for _, entry := range entries {
		d.processEntry(ctx, tx, entry)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	duration := time.Since(start)
	if d.collector != nil {
		d.collector.RecordDispatchLatency(duration)
	}
	d.logger.Info("配信サイクルが完了しました",
		slog.Int("entry_count", len(entries)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// processEntry は1エントリを配信し、結果に応じて状態を更新する。
// 状態更新の失敗はログに記録して続行する。トランザクションごと
// ロールバックされた場合もエントリはpendingのまま残り、次サイクルで再取得される。
func (d *Dispatcher) processEntry(ctx context.Context, tx repository.Tx, entry *model.EventOutboxEntry) {
	attempt := entry.AttemptCount + 1

	deliverErr := d.deliver(ctx, entry)
	if deliverErr == nil {
		if err := d.outboxRepo.MarkSent(ctx, tx, entry.ID, attempt); err != nil {
			d.logger.Error("配信済みへの更新に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		d.recordResult(entry.Channel, metrics.DispatchResultSent)
		return
	}

	d.logger.Warn("配信に失敗しました",
		slog.String("entry_id", entry.ID),
		slog.String("event_id", entry.EventID),
		slog.String("channel", string(entry.Channel)),
		slog.Int("attempt", attempt),
		slog.String("error", deliverErr.Error()),
	)

	if attempt >= d.maxAttempts {
		if err := d.outboxRepo.MarkFailed(ctx, tx, entry.ID, attempt, deliverErr.Error()); err != nil {
			d.logger.Error("失敗状態への更新に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		d.recordResult(entry.Channel, metrics.DispatchResultFail)
		return
	}

	nextAttemptAt := time.Now().Add(CalculateBackoff(attempt))
	if err := d.outboxRepo.MarkRetry(ctx, tx, entry.ID, attempt, nextAttemptAt, deliverErr.Error()); err != nil {
		d.logger.Error("リトライ状態への更新に失敗しました",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.recordResult(entry.Channel, metrics.DispatchResultRetry)
}

// deliver はエントリの親イベントを取得し、チャネルのノーティファイアに渡す。
func (d *Dispatcher) deliver(ctx context.Context, entry *model.EventOutboxEntry) error {
	notifier, ok := d.notifiers[entry.Channel]
	if !ok {
		return &UnsupportedChannelError{Channel: entry.Channel}
	}

	event, err := d.eventRepo.FindEventByID(ctx, entry.EventID)
	if err != nil {
		return err
	}
	if event == nil {
		return &MissingEventError{EventID: entry.EventID}
	}

	return notifier.Deliver(ctx, event, entry)
}

func (d *Dispatcher) recordResult(channel model.NotificationChannel, result string) {
	if d.collector != nil {
		d.collector.RecordDispatchResult(string(channel), result)
	}
}

// UnsupportedChannelError はノーティファイア未登録のチャネルを表す。
type UnsupportedChannelError struct {
	Channel model.NotificationChannel
}

// Error はerrorインターフェースを実装する。
func (e *UnsupportedChannelError) Error() string {
	return "unsupported notification channel: " + string(e.Channel)
}

// MissingEventError は親イベントが見つからないエントリを表す。
type MissingEventError struct {
	EventID string
}

// Error はerrorインターフェースを実装する。
func (e *MissingEventError) Error() string {
	return "outbox entry references missing event: " + e.EventID
}
