// Package rentalapp は賃貸申込のドメインロジックを提供する。
//
// 申込の作成・決定は、ドメイン行の書き込みとアウトボックスへのイベント発行を
// 1つのトランザクションで行う。全手順がコミットされるか、何も残らないかの
// どちらかになる。
package rentalapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/estately/internal/events"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/repository"
	"github.com/hitoshi/estately/internal/security"
)

// イベント種別
const (
	EventApplicationSubmitted = "rental_application.submitted"
	EventApplicationDecided   = "rental_application.decided"
)

// listLimitDefault / listLimitMax は一覧取得の件数制限。
const (
	listLimitDefault = 20
	listLimitMax     = 100
)

// DocumentInput は申込に添付するドキュメントの入力。
type DocumentInput struct {
	FileURL  string
	Metadata json.RawMessage
}

// CreateInput は申込作成の入力。
type CreateInput struct {
	ApplicantUserID string
	PropertyID      string
	Payload         json.RawMessage
	Documents       []DocumentInput
}

// DecideInput は申込決定の入力。Statusは境界で検証済みの前提。
type DecideInput struct {
	ActorUserID   string
	ApplicationID string
	Status        model.RentalApplicationStatus
}

// ListInput は申込一覧の入力。
// PropertyIDが指定された場合は物件単位の一覧（オーナー/エージェント向け）、
// 未指定の場合は操作者自身の申込一覧になる。
type ListInput struct {
	ActorUserID string
	PropertyID  string
	Status      model.RentalApplicationStatus
	Limit       int
	Cursor      string
}

// ListResult は申込一覧の結果。
type ListResult struct {
	Applications []*model.RentalApplication
	HasMore      bool
	NextCursor   string
}

// Service は賃貸申込のサービス層。
type Service struct {
	db           repository.Queryer
	txBeginner   repository.TxBeginner
	propertyRepo repository.PropertyRepository
	rentalRepo   repository.RentalApplicationRepository
	events       *events.Service
	urlGuard     security.SSRFGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
// dbはトランザクション外の読み取りに使用する。
func NewService(
	db repository.Queryer,
	txBeginner repository.TxBeginner,
	propertyRepo repository.PropertyRepository,
	rentalRepo repository.RentalApplicationRepository,
	eventService *events.Service,
	urlGuard security.SSRFGuardService,
) *Service {
	return &Service{
		db:           db,
		txBeginner:   txBeginner,
		propertyRepo: propertyRepo,
		rentalRepo:   rentalRepo,
		events:       eventService,
		urlGuard:     urlGuard,
	}
}

// Create は賃貸申込を提出する。
// 申込本体・提出時スナップショット・添付ドキュメント・提出イベントを
// 1つのトランザクションで書き込む。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.RentalApplication, error) {
	// 添付URLの検証は書き込み前に行う（内部ネットワークを指すURLを拒否）
	for _, doc := range input.Documents {
		if err := s.urlGuard.ValidateURL(doc.FileURL); err != nil {
			return nil, model.NewInvalidDocumentURLError(err.Error())
		}
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

	now := time.Now()
	app := &model.RentalApplication{
		PropertyID:      input.PropertyID,
		ApplicantUserID: input.ApplicantUserID,
		Status:          model.RentalStatusSubmitted,
		SubmittedAt:     &now,
	}
	if err := s.rentalRepo.Create(ctx, tx, app); err != nil {
		return nil, fmt.Errorf("申込の作成に失敗しました: %w", err)
	}

	snapshot := &model.RentalApplicationSnapshot{
		RentalApplicationID: app.ID,
		SubmittedPayload:    input.Payload,
	}
	if err := s.rentalRepo.CreateSnapshot(ctx, tx, snapshot); err != nil {
		return nil, fmt.Errorf("提出スナップショットの作成に失敗しました: %w", err)
	}

	if len(input.Documents) > 0 {
		documents := make([]model.RentalApplicationDocument, len(input.Documents))
		for i, doc := range input.Documents {
			documents[i] = model.RentalApplicationDocument{
				RentalApplicationID: app.ID,
				FileURL:             doc.FileURL,
				Metadata:            doc.Metadata,
			}
		}
		if err := s.rentalRepo.CreateDocuments(ctx, tx, documents); err != nil {
			return nil, fmt.Errorf("添付ドキュメントの保存に失敗しました: %w", err)
		}
	}

	recipients := []string{property.OwnerUserID}
	if property.AgentUserID != nil && *property.AgentUserID != property.OwnerUserID {
		recipients = append(recipients, *property.AgentUserID)
	}
	payload, err := json.Marshal(map[string]any{
		"applicationId":    app.ID,
		"propertyId":       input.PropertyID,
		"applicantUserId":  input.ApplicantUserID,
		"recipientUserIds": recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("イベントペイロードの作成に失敗しました: %w", err)
	}
	if _, err := s.events.EmitTx(ctx, tx, events.EmitInput{
		EventType:     EventApplicationSubmitted,
		AggregateType: "rental_application",
		AggregateID:   app.ID,
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("申込のコミットに失敗しました: %w", err)
	}

	return app, nil
}

// Decide は賃貸申込の状態を決定する。
// 権限確認・終端状態の拒否・状態更新・決定イベントの発行を
// 1つのトランザクションで行う。
// under_reviewへの遷移は過去の決定フィールド（decided_at / decided_by）を保持する。
func (s *Service) Decide(ctx context.Context, input DecideInput) (*model.RentalApplication, error) {
	tx, err := s.txBeginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	app, err := s.rentalRepo.FindByID(ctx, tx, input.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("申込の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(input.ApplicationID)
	}

	property, err := s.propertyRepo.FindByID(ctx, tx, app.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if property == nil {
		return nil, model.NewPropertyNotFoundError(app.PropertyID)
	}
	if !property.CanModerate(input.ActorUserID) {
		return nil, model.NewForbiddenError()
	}

	if app.Status.IsTerminal() {
		return nil, model.NewTerminalStateError()
	}

	app.Status = input.Status
	if input.Status.IsTerminal() {
		now := time.Now()
		actor := input.ActorUserID
		app.DecidedAt = &now
		app.DecidedByUserID = &actor
	}
	if err := s.rentalRepo.UpdateDecision(ctx, tx, app); err != nil {
		return nil, fmt.Errorf("申込の更新に失敗しました: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"applicationId":    app.ID,
		"propertyId":       app.PropertyID,
		"status":           string(input.Status),
		"decidedBy":        input.ActorUserID,
		"recipientUserIds": []string{app.ApplicantUserID},
	})
	if err != nil {
		return nil, fmt.Errorf("イベントペイロードの作成に失敗しました: %w", err)
	}
	if _, err := s.events.EmitTx(ctx, tx, events.EmitInput{
		EventType:     EventApplicationDecided,
		AggregateType: "rental_application",
		AggregateID:   app.ID,
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("決定のコミットに失敗しました: %w", err)
	}

	return app, nil
}

// List は賃貸申込の一覧を返す。
// 物件単位の一覧は物件のオーナーまたは担当エージェントのみ取得できる。
func (s *Service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	opts := repository.ListRentalApplicationsOptions{
		Status: input.Status,
		Limit:  limit,
		Cursor: input.Cursor,
	}

	if input.PropertyID != "" {
		property, err := s.propertyRepo.FindByID(ctx, s.db, input.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
		}
		if property == nil {
			return nil, model.NewPropertyNotFoundError(input.PropertyID)
		}
		if !property.CanModerate(input.ActorUserID) {
			return nil, model.NewForbiddenError()
		}
		opts.PropertyID = input.PropertyID
	} else {
		opts.ApplicantUserID = input.ActorUserID
	}

	apps, hasMore, err := s.rentalRepo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("申込一覧の取得に失敗しました: %w", err)
	}

	result := &ListResult{
		Applications: apps,
		HasMore:      hasMore,
	}
	if hasMore && len(apps) > 0 {
		result.NextCursor = apps[len(apps)-1].ID
	}

	return result, nil
}
