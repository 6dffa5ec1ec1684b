// Package thread は物件メッセージスレッドのドメインロジックを提供する。
package thread

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/estately/internal/events"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
	"github.com/hitoshi/estately/internal/security"
)

// イベント種別
const (
	EventThreadCreated = "thread.created"
	EventMessageSent   = "thread.message_sent"
)

const (
	// maxBodyRunes はサニタイズ後のメッセージ本文の最大文字数。
	maxBodyRunes = 4000
	// previewRunes は通知ペイロードに含めるプレビューの最大文字数。
	previewRunes = 120

	listLimitDefault = 20
	listLimitMax     = 100
)

// CreateThreadInput はスレッド作成の入力。
type CreateThreadInput struct {
	CreatorUserID  string
	PropertyID     string
	OrganizationID *string
	// InitialBody が空でない場合、作成と同時に最初のメッセージを送信する。
	InitialBody string
}

// SendMessageInput はメッセージ送信の入力。
type SendMessageInput struct {
	SenderUserID string
	ThreadID     string
	Body         string
}

// Service は物件スレッドのサービス層。
type Service struct {
	txBeginner   repository.TxBeginner
	propertyRepo repository.PropertyRepository
	threadRepo   repository.ThreadRepository
	events       *events.Service
	sanitizer    security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	txBeginner repository.TxBeginner,
	propertyRepo repository.PropertyRepository,
	threadRepo repository.ThreadRepository,
	eventService *events.Service,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		txBeginner:   txBeginner,
		propertyRepo: propertyRepo,
		threadRepo:   threadRepo,
		events:       eventService,
		sanitizer:    sanitizer,
	}
}

// CreateThread は物件への問い合わせスレッドを作成する。
// 物件のオーナー・担当エージェント・作成者を参加者として登録し、
// 作成イベントを同一トランザクションで発行する。
func (s *Service) CreateThread(ctx context.Context, input CreateThreadInput) (*model.PropertyThread, error) {
	var initialBody string
	if input.InitialBody != "" {
		sanitized, err := s.sanitizeBody(input.InitialBody)
		if err != nil {
			return nil, err
		}
		initialBody = sanitized
	}

	tx, err := s.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	property, err := s.propertyRepo.FindByID(ctx, tx, input.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if property == nil {
		return nil, model.NewPropertyNotFoundError(input.PropertyID)
	}

	th := &model.PropertyThread{
		PropertyID:      input.PropertyID,
		CreatedByUserID: input.CreatorUserID,
		OrganizationID:  input.OrganizationID,
	}
	if err := s.threadRepo.CreateThread(ctx, tx, th); err != nil {
		return nil, fmt.Errorf("スレッドの作成に失敗しました: %w", err)
	}

	participants := s.buildParticipants(th.ID, property, input.CreatorUserID)
	if err := s.threadRepo.AddParticipants(ctx, tx, participants); err != nil {
		return nil, fmt.Errorf("参加者の登録に失敗しました: %w", err)
	}

	if initialBody != "" {
		if _, err := s.writeMessage(ctx, tx, th, input.CreatorUserID, initialBody); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(map[string]any{
		"threadId":         th.ID,
		"propertyId":       input.PropertyID,
		"createdByUserId":  input.CreatorUserID,
		"recipientUserIds": recipientsExcept(participants, input.CreatorUserID),
	})
	if err != nil {
		return nil, fmt.Errorf("イベントペイロードの作成に失敗しました: %w", err)
	}
	if _, err := s.events.EmitTx(ctx, tx, events.EmitInput{
		EventType:     EventThreadCreated,
		AggregateType: "property_thread",
		AggregateID:   th.ID,
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("スレッド作成のコミットに失敗しました: %w", err)
	}

	return th, nil
}

// SendMessage はスレッドにメッセージを送信する。
// 本文のサニタイズ・メッセージ作成・最終メッセージ時刻の更新・
// 送信者の既読位置更新・送信イベントの発行を1つのトランザクションで行う。
// 参加していないスレッドは存在を秘匿するためTHREAD_NOT_FOUNDを返す。
func (s *Service) SendMessage(ctx context.Context, input SendMessageInput) (*model.ThreadMessage, error) {
	sanitized, err := s.sanitizeBody(input.Body)
	if err != nil {
		return nil, err
	}

	participant, err := s.threadRepo.FindParticipant(ctx, input.ThreadID, input.SenderUserID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if participant == nil {
		return nil, model.NewThreadNotFoundError(input.ThreadID)
	}

	tx, err := s.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	msg, err := s.writeMessage(ctx, tx, &model.PropertyThread{ID: input.ThreadID}, input.SenderUserID, sanitized)
	if err != nil {
		return nil, err
	}

	participants, err := s.threadRepo.ListParticipants(ctx, tx, input.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}

	preview := s.sanitizer.PreviewText(sanitized, previewRunes)
	payload, err := json.Marshal(map[string]any{
		"threadId":         input.ThreadID,
		"messageId":        msg.ID,
		"senderUserId":     input.SenderUserID,
		"preview":          preview,
		"recipientUserIds": recipientsExcept(participants, input.SenderUserID),
	})
	if err != nil {
		return nil, fmt.Errorf("イベントペイロードの作成に失敗しました: %w", err)
	}
	if _, err := s.events.EmitTx(ctx, tx, events.EmitInput{
		EventType:     EventMessageSent,
		AggregateType: "thread_message",
		AggregateID:   msg.ID,
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("メッセージ送信のコミットに失敗しました: %w", err)
	}

	return msg, nil
}

// ListThreadsForProperty は指定物件のスレッド一覧を未読数付きで返す。
// 操作者が参加しているスレッドのみ返すため、追加の権限確認は不要。
func (s *Service) ListThreadsForProperty(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error) {
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	threads, err := s.threadRepo.ListByPropertyWithUnread(ctx, actorUserID, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("スレッド一覧の取得に失敗しました: %w", err)
	}

	return threads, nil
}

// sanitizeBody は本文をサニタイズし、空または長すぎる本文を拒否する。
func (s *Service) sanitizeBody(body string) (string, error) {
	sanitized := strings.TrimSpace(s.sanitizer.SanitizeBody(body))
	if sanitized == "" {
		return "", model.NewInvalidMessageBodyError()
	}
	if utf8.RuneCountInString(sanitized) > maxBodyRunes {
		return "", model.NewInvalidMessageBodyError()
	}
	return sanitized, nil
}

// writeMessage はメッセージ作成・最終メッセージ時刻・送信者の既読位置を
// 渡されたトランザクション内で書き込む。
func (s *Service) writeMessage(ctx context.Context, tx repository.Tx, th *model.PropertyThread, senderUserID, sanitizedBody string) (*model.ThreadMessage, error) {
	msg := &model.ThreadMessage{
		ThreadID:     th.ID,
		SenderUserID: senderUserID,
		MessageType:  model.MessageTypeText,
		Body:         sanitizedBody,
	}
	if err := s.threadRepo.CreateMessage(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}

	now := time.Now()
	if err := s.threadRepo.TouchLastMessageAt(ctx, tx, th.ID, now); err != nil {
		return nil, fmt.Errorf("最終メッセージ時刻の更新に失敗しました: %w", err)
	}

	// 送信者自身のメッセージを未読として数えないための既読位置更新
	if err := s.threadRepo.UpsertReadState(ctx, tx, &model.MessageReadState{
		ThreadID:          th.ID,
		UserID:            senderUserID,
		LastReadMessageID: &msg.ID,
	}); err != nil {
		return nil, fmt.Errorf("既読位置の更新に失敗しました: %w", err)
	}

	return msg, nil
}

// buildParticipants はオーナー・エージェント・作成者を重複なく参加者に組み立てる。
func (s *Service) buildParticipants(threadID string, property *model.Property, creatorUserID string) []model.ThreadParticipant {
	participants := []model.ThreadParticipant{
		{ThreadID: threadID, UserID: property.OwnerUserID, Role: model.ParticipantRoleOwner},
	}
	seen := map[string]bool{property.OwnerUserID: true}

	if property.AgentUserID != nil && !seen[*property.AgentUserID] {
		participants = append(participants, model.ThreadParticipant{
			ThreadID: threadID,
			UserID:   *property.AgentUserID,
			Role:     model.ParticipantRoleAgent,
		})
		seen[*property.AgentUserID] = true
	}

	if !seen[creatorUserID] {
		participants = append(participants, model.ThreadParticipant{
			ThreadID: threadID,
			UserID:   creatorUserID,
			Role:     model.ParticipantRoleInquirer,
		})
	}

	return participants
}

// recipientsExcept は参加者一覧から指定ユーザーを除いたIDの列を返す。
// イベントペイロードに通知先として埋め込まれる。
func recipientsExcept(participants []model.ThreadParticipant, excludeUserID string) []string {
	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.UserID != excludeUserID {
			recipients = append(recipients, p.UserID)
		}
	}
	return recipients
}
