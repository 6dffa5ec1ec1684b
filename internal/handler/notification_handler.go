package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/estately/internal/middleware"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/notification"
)

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	// List はユーザーの通知一覧をカーソルページネーションで返す。
	List(ctx context.Context, userID string, limit int, cursor string) (*notification.ListResult, error)
	// UpdatePreference はイベント種別ごとの配信設定を更新する。
	UpdatePreference(ctx context.Context, input notification.PreferenceInput) error
	// GetPreference は配信設定を取得する。未設定の場合は全チャネル有効のデフォルトを返す。
	GetPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error)
}

// NotificationHandler はアプリ内通知のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID             string          `json:"id"`
	OrganizationID *string         `json:"organization_id,omitempty"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Data           json.RawMessage `json:"data,omitempty"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// notificationListResponse は通知一覧のAPIレスポンス。
type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
	HasMore       bool                   `json:"has_more"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

// preferenceRequest は配信設定更新リクエストのボディ。
type preferenceRequest struct {
	EventType    string `json:"event_type"`
	InAppEnabled bool   `json:"in_app_enabled"`
	EmailEnabled bool   `json:"email_enabled"`
	PushEnabled  bool   `json:"push_enabled"`
}

// preferenceResponse は配信設定のAPIレスポンス。
type preferenceResponse struct {
	EventType    string `json:"event_type"`
	InAppEnabled bool   `json:"in_app_enabled"`
	EmailEnabled bool   `json:"email_enabled"`
	PushEnabled  bool   `json:"push_enabled"`
}

// List は通知一覧を処理する。
// GET /api/notifications?limit=&cursor=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	result, err := h.service.List(r.Context(), userID, limit, query.Get("cursor"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := notificationListResponse{
		Notifications: make([]notificationResponse, 0, len(result.Notifications)),
		HasMore:       result.HasMore,
		NextCursor:    result.NextCursor,
	}
	for _, n := range result.Notifications {
		resp.Notifications = append(resp.Notifications, notificationResponse{
			ID:             n.ID,
			OrganizationID: n.OrganizationID,
			Type:           n.Type,
			Title:          n.Title,
			Body:           n.Body,
			Data:           n.Data,
			ReadAt:         n.ReadAt,
			CreatedAt:      n.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetPreference はイベント種別ごとの配信設定の取得を処理する。
// GET /api/notifications/preferences?event_type=
func (h *NotificationHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	eventType := r.URL.Query().Get("event_type")
	if eventType == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	pref, err := h.service.GetPreference(r.Context(), userID, eventType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preferenceResponse{
		EventType:    pref.EventType,
		InAppEnabled: pref.InAppEnabled,
		EmailEnabled: pref.EmailEnabled,
		PushEnabled:  pref.PushEnabled,
	})
}

// UpdatePreference はイベント種別ごとの配信設定の更新を処理する。
// PUT /api/notifications/preferences
func (h *NotificationHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.EventType == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if err := h.service.UpdatePreference(r.Context(), notification.PreferenceInput{
		UserID:       userID,
		EventType:    req.EventType,
		InAppEnabled: req.InAppEnabled,
		EmailEnabled: req.EmailEnabled,
		PushEnabled:  req.PushEnabled,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
