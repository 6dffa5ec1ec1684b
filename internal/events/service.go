// Package events はドメインイベントの発行とアウトボックス登録を提供する。
//
// イベント本体とチャネルごとの配信意図（アウトボックスエントリ）は常に
// 同一トランザクションで作成される。コミット前のクラッシュでは両方が消え、
// コミット後のクラッシュではディスパッチャが未配信エントリを拾うため、
// 配信保証はat-least-onceとなる。
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/estately/internal/metrics"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
)

// ErrInvalidEvent はイベントの必須フィールドが欠けている場合に返される。
var ErrInvalidEvent = errors.New("イベントの必須フィールドが不足しています")

// EmitInput はイベント発行の入力。
type EmitInput struct {
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte

	// Channels がnilの場合はDefaultChannelsが適用される。
	// 空スライスを明示した場合は記録のみ行い、配信エントリを作成しない。
	Channels []model.NotificationChannel
}

// Service はドメインイベントの発行サービス。
type Service struct {
	txBeginner repository.TxBeginner
	eventRepo  repository.EventRepository
	collector  metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(txBeginner repository.TxBeginner, eventRepo repository.EventRepository) *Service {
	return &Service{
		txBeginner: txBeginner,
		eventRepo:  eventRepo,
	}
}

// SetCollector は発行メトリクスの記録先を設定する。未設定の場合は記録しない。
func (s *Service) SetCollector(c metrics.MetricsCollector) {
	s.collector = c
}

// Emit は単独のトランザクションでイベントを発行する。
// 業務書き込みと同一トランザクションにしたい場合はEmitTxを使う。
func (s *Service) Emit(ctx context.Context, input EmitInput) (*model.DomainEvent, error) {
	tx, err := s.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	event, err := s.EmitTx(ctx, tx, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("イベントのコミットに失敗しました: %w", err)
	}

	return event, nil
}

// EmitTx は呼び出し側のトランザクションに参加してイベントを発行する。
// アウトボックスエントリの挿入に失敗した場合はエラーを返し、呼び出し側の
// ロールバックによってイベント本体も取り消される。
func (s *Service) EmitTx(ctx context.Context, q repository.Queryer, input EmitInput) (*model.DomainEvent, error) {
	if input.EventType == "" || input.AggregateType == "" || input.AggregateID == "" {
		return nil, ErrInvalidEvent
	}

	channels := input.Channels
	if channels == nil {
		channels = model.DefaultChannels
	}
	for _, ch := range channels {
		if _, ok := model.ParseNotificationChannel(string(ch)); !ok {
			return nil, fmt.Errorf("%w: 不正なチャネル %q", ErrInvalidEvent, ch)
		}
	}

	event := &model.DomainEvent{
		EventType:     input.EventType,
		AggregateType: input.AggregateType,
		AggregateID:   input.AggregateID,
		Payload:       input.Payload,
	}
	if err := s.eventRepo.InsertEvent(ctx, q, event); err != nil {
		return nil, fmt.Errorf("イベントの記録に失敗しました: %w", err)
	}

	if len(channels) > 0 {
		if err := s.eventRepo.InsertOutboxEntries(ctx, q, event.ID, channels); err != nil {
			return nil, fmt.Errorf("アウトボックスエントリの作成に失敗しました: %w", err)
		}
	}

	// コミット前の記録となるが、発行試行数の指標としては十分
	if s.collector != nil {
		s.collector.RecordEventEmitted(input.EventType)
	}

	return event, nil
}
