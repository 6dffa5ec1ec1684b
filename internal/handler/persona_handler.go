// Package handler はHTTP APIのハンドラー層を提供する。
// リクエストの解析・enum検証・エラーマッピングを担い、ドメインロジックは
// サービス層に委譲する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/estately/internal/metrics"
	"github.com/hitoshi/estately/internal/middleware"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/persona"
)

// PersonaServiceInterface はペルソナハンドラーが必要とするサービスインターフェース。
type PersonaServiceInterface interface {
	// ResolvePostAuthFlow は認証完了後の着地先を決定する。
	ResolvePostAuthFlow(ctx context.Context, input persona.ResolveInput) (*persona.Resolution, error)
	// AddPersonaToCurrentUser はユーザーにペルソナを追加する。
	AddPersonaToCurrentUser(ctx context.Context, userID string, role model.Role) (*persona.ActionResult, error)
	// CompletePersonaOnboarding はオンボーディング完了を記録する。
	CompletePersonaOnboarding(ctx context.Context, userID string, role model.Role, activeOrganizationID *string) (*persona.ActionResult, error)
}

// PersonaHandler はペルソナ解決・管理のHTTPハンドラー。
type PersonaHandler struct {
	service   PersonaServiceInterface
	collector metrics.MetricsCollector
}

// NewPersonaHandler はPersonaHandlerを生成する。collectorはnil可。
func NewPersonaHandler(service PersonaServiceInterface, collector metrics.MetricsCollector) *PersonaHandler {
	return &PersonaHandler{
		service:   service,
		collector: collector,
	}
}

// resolveRequest は認証後解決リクエストのボディ。
type resolveRequest struct {
	IntendedRole string `json:"intended_role"`
}

// resolveResponse は認証後解決のAPIレスポンス。
// outcomeがredirectの場合はpersona/destinationが、
// interstitialの場合はintended_role/primary_role/continue_destinationが設定される。
type resolveResponse struct {
	Outcome             string `json:"outcome"`
	Persona             string `json:"persona,omitempty"`
	Destination         string `json:"destination,omitempty"`
	IntendedRole        string `json:"intended_role,omitempty"`
	PrimaryRole         string `json:"primary_role,omitempty"`
	ContinueDestination string `json:"continue_destination,omitempty"`
}

// personaActionRequest はペルソナ追加・オンボーディング完了リクエストのボディ。
type personaActionRequest struct {
	Role string `json:"role"`
}

// personaActionResponse はペルソナ操作後の遷移先レスポンス。
type personaActionResponse struct {
	Destination string `json:"destination"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Resolve は認証完了後のペルソナ解決を処理する。
// POST /api/persona/resolve
func (h *PersonaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	// intended_roleは任意。指定された場合のみ検証する。
	var intendedRole *model.Role
	if req.IntendedRole != "" {
		role, ok := model.ParseRole(req.IntendedRole)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(req.IntendedRole))
			return
		}
		intendedRole = &role
	}

	resolution, err := h.service.ResolvePostAuthFlow(r.Context(), persona.ResolveInput{
		UserID:               session.UserID,
		Email:                session.Email,
		IntendedRole:         intendedRole,
		ActiveOrganizationID: session.ActiveOrganizationID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordResolutionOutcome(string(resolution.Kind))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResolveResponse(resolution))
}

// AddPersona は認証済みユーザーへのペルソナ追加を処理する。
// POST /api/persona
func (h *PersonaHandler) AddPersona(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req personaActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(req.Role))
		return
	}

	result, err := h.service.AddPersonaToCurrentUser(r.Context(), userID, role)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(personaActionResponse{Destination: result.Destination})
}

// CompleteOnboarding はペルソナのオンボーディング完了を処理する。
// POST /api/persona/onboarding/complete
func (h *PersonaHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req personaActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(req.Role))
		return
	}

	result, err := h.service.CompletePersonaOnboarding(r.Context(), session.UserID, role, session.ActiveOrganizationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(personaActionResponse{Destination: result.Destination})
}

// --- ヘルパー関数 ---

// toResolveResponse はpersona.ResolutionからAPIレスポンスに変換する。
func toResolveResponse(resolution *persona.Resolution) resolveResponse {
	resp := resolveResponse{Outcome: string(resolution.Kind)}

	switch resolution.Kind {
	case persona.OutcomeRedirect:
		resp.Persona = string(resolution.Persona)
		resp.Destination = resolution.Destination
	case persona.OutcomeInterstitial:
		resp.IntendedRole = string(resolution.IntendedRole)
		resp.PrimaryRole = string(resolution.PrimaryRole)
		resp.ContinueDestination = resolution.ContinueDestination
	}

	return resp
}

// invalidRequestError はリクエストボディ解析失敗のエラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	// セッションユーザー不整合は強制サインアウトを促す401
	var sessionErr *model.InvalidSessionUserError
	if errors.As(err, &sessionErr) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionUserError())
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidSessionUser:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRole, model.ErrCodeInvalidStatus,
		model.ErrCodeInvalidDocumentURL, model.ErrCodeInvalidMessageBody,
		"INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodePropertyNotFound, model.ErrCodeApplicationNotFound,
		model.ErrCodeThreadNotFound:
		return http.StatusNotFound
	case model.ErrCodeTerminalState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
