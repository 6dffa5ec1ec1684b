package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/estately/internal/middleware"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/rentalapp"
)

// RentalServiceInterface は賃貸申込ハンドラーが必要とするサービスインターフェース。
type RentalServiceInterface interface {
	// Create は申込をスナップショット・添付・イベントとともに作成する。
	Create(ctx context.Context, input rentalapp.CreateInput) (*model.RentalApplication, error)
	// Decide は申込の状態遷移を処理する。
	Decide(ctx context.Context, input rentalapp.DecideInput) (*model.RentalApplication, error)
	// List は申込一覧をカーソルページネーションで返す。
	List(ctx context.Context, input rentalapp.ListInput) (*rentalapp.ListResult, error)
}

// RentalHandler は賃貸申込のHTTPハンドラー。
type RentalHandler struct {
	service RentalServiceInterface
}

// NewRentalHandler はRentalHandlerを生成する。
func NewRentalHandler(service RentalServiceInterface) *RentalHandler {
	return &RentalHandler{service: service}
}

// createApplicationRequest は申込作成リクエストのボディ。
type createApplicationRequest struct {
	PropertyID string                     `json:"property_id"`
	Payload    json.RawMessage            `json:"payload"`
	Documents  []applicationDocumentInput `json:"documents"`
}

// applicationDocumentInput は申込に添付するドキュメントの入力。
type applicationDocumentInput struct {
	FileURL  string          `json:"file_url"`
	Metadata json.RawMessage `json:"metadata"`
}

// decideApplicationRequest は申込決定リクエストのボディ。
type decideApplicationRequest struct {
	Status string `json:"status"`
}

// applicationResponse は賃貸申込のAPIレスポンス。
type applicationResponse struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	ApplicantUserID string     `json:"applicant_user_id"`
	Status          string     `json:"status"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	DecidedByUserID *string    `json:"decided_by_user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// applicationListResponse は申込一覧のAPIレスポンス。
type applicationListResponse struct {
	Applications []applicationResponse `json:"applications"`
	HasMore      bool                  `json:"has_more"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// Create は賃貸申込の作成を処理する。
// POST /api/rental-applications
func (h *RentalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.PropertyID == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPropertyNotFoundError(""))
		return
	}

	documents := make([]rentalapp.DocumentInput, 0, len(req.Documents))
	for _, doc := range req.Documents {
		documents = append(documents, rentalapp.DocumentInput{
			FileURL:  doc.FileURL,
			Metadata: doc.Metadata,
		})
	}

	app, err := h.service.Create(r.Context(), rentalapp.CreateInput{
		ApplicantUserID: userID,
		PropertyID:      req.PropertyID,
		Payload:         req.Payload,
		Documents:       documents,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// Decide は賃貸申込の決定を処理する。
// PATCH /api/rental-applications/:id/decision
func (h *RentalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	applicationID := chi.URLParam(r, "id")

	var req decideApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	// 遷移先状態の検証は境界で完了させる
	status, ok := model.ParseDecisionStatus(req.Status)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(req.Status))
		return
	}

	app, err := h.service.Decide(r.Context(), rentalapp.DecideInput{
		ActorUserID:   userID,
		ApplicationID: applicationID,
		Status:        status,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toApplicationResponse(app))
}

// List は賃貸申込の一覧を処理する。
// GET /api/rental-applications?property_id=&status=&limit=&cursor=
func (h *RentalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()

	var status model.RentalApplicationStatus
	if raw := query.Get("status"); raw != "" {
		parsed, ok := model.ParseRentalApplicationStatus(raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(raw))
			return
		}
		status = parsed
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	result, err := h.service.List(r.Context(), rentalapp.ListInput{
		ActorUserID: userID,
		PropertyID:  query.Get("property_id"),
		Status:      status,
		Limit:       limit,
		Cursor:      query.Get("cursor"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := applicationListResponse{
		Applications: make([]applicationResponse, 0, len(result.Applications)),
		HasMore:      result.HasMore,
		NextCursor:   result.NextCursor,
	}
	for _, app := range result.Applications {
		resp.Applications = append(resp.Applications, toApplicationResponse(app))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// toApplicationResponse はmodel.RentalApplicationからAPIレスポンスに変換する。
func toApplicationResponse(app *model.RentalApplication) applicationResponse {
	return applicationResponse{
		ID:              app.ID,
		PropertyID:      app.PropertyID,
		ApplicantUserID: app.ApplicantUserID,
		Status:          string(app.Status),
		SubmittedAt:     app.SubmittedAt,
		DecidedAt:       app.DecidedAt,
		DecidedByUserID: app.DecidedByUserID,
		CreatedAt:       app.CreatedAt,
	}
}
