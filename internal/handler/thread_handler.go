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
	"github.com/hitoshi/estately/internal/thread"
)

// ThreadServiceInterface はスレッドハンドラーが必要とするサービスインターフェース。
type ThreadServiceInterface interface {
	// CreateThread は物件スレッドを参加者・初回メッセージとともに作成する。
	CreateThread(ctx context.Context, input thread.CreateThreadInput) (*model.PropertyThread, error)
	// SendMessage はスレッドへメッセージを送信する。
	SendMessage(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error)
	// ListThreadsForProperty は物件のスレッド一覧を未読数とともに返す。
	ListThreadsForProperty(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error)
}

// ThreadHandler は物件スレッドのHTTPハンドラー。
type ThreadHandler struct {
	service ThreadServiceInterface
}

// NewThreadHandler はThreadHandlerを生成する。
func NewThreadHandler(service ThreadServiceInterface) *ThreadHandler {
	return &ThreadHandler{service: service}
}

// createThreadRequest はスレッド作成リクエストのボディ。
type createThreadRequest struct {
	PropertyID     string  `json:"property_id"`
	OrganizationID *string `json:"organization_id"`
	InitialBody    string  `json:"initial_body"`
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	Body string `json:"body"`
}

// threadResponse は物件スレッドのAPIレスポンス。
type threadResponse struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	CreatedByUserID string     `json:"created_by_user_id"`
	OrganizationID  *string    `json:"organization_id,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UnreadCount     int        `json:"unread_count"`
}

// messageResponse はスレッドメッセージのAPIレスポンス。
type messageResponse struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	SenderUserID string    `json:"sender_user_id"`
	MessageType  string    `json:"message_type"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// threadListResponse はスレッド一覧のAPIレスポンス。
type threadListResponse struct {
	Threads []threadResponse `json:"threads"`
}

// CreateThread は物件スレッドの作成を処理する。
// POST /api/threads
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.PropertyID == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPropertyNotFoundError(""))
		return
	}

	th, err := h.service.CreateThread(r.Context(), thread.CreateThreadInput{
		CreatorUserID:  userID,
		PropertyID:     req.PropertyID,
		OrganizationID: req.OrganizationID,
		InitialBody:    req.InitialBody,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toThreadResponse(th, 0))
}

// SendMessage はスレッドへのメッセージ送信を処理する。
// POST /api/threads/:id/messages
func (h *ThreadHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	threadID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	msg, err := h.service.SendMessage(r.Context(), thread.SendMessageInput{
		SenderUserID: userID,
		ThreadID:     threadID,
		Body:         req.Body,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(messageResponse{
		ID:           msg.ID,
		ThreadID:     msg.ThreadID,
		SenderUserID: msg.SenderUserID,
		MessageType:  string(msg.MessageType),
		Body:         msg.Body,
		CreatedAt:    msg.CreatedAt,
	})
}

// ListThreads は物件のスレッド一覧を処理する。
// GET /api/properties/:id/threads?limit=
func (h *ThreadHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	propertyID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	threads, err := h.service.ListThreadsForProperty(r.Context(), userID, propertyID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := threadListResponse{Threads: make([]threadResponse, 0, len(threads))}
	for _, th := range threads {
		resp.Threads = append(resp.Threads, toThreadResponse(&th.PropertyThread, th.UnreadCount))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// toThreadResponse はmodel.PropertyThreadからAPIレスポンスに変換する。
func toThreadResponse(th *model.PropertyThread, unreadCount int) threadResponse {
	return threadResponse{
		ID:              th.ID,
		PropertyID:      th.PropertyID,
		CreatedByUserID: th.CreatedByUserID,
		OrganizationID:  th.OrganizationID,
		LastMessageAt:   th.LastMessageAt,
		CreatedAt:       th.CreatedAt,
		UnreadCount:     unreadCount,
	}
}
