package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/thread"
)

// --- モック定義 ---

// mockThreadService はThreadServiceInterfaceのモック実装。
type mockThreadService struct {
	createThreadFn func(ctx context.Context, input thread.CreateThreadInput) (*model.PropertyThread, error)
	sendMessageFn  func(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error)
	listThreadsFn  func(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error)
}

func (m *mockThreadService) CreateThread(ctx context.Context, input thread.CreateThreadInput) (*model.PropertyThread, error) {
	if m.createThreadFn != nil {
		return m.createThreadFn(ctx, input)
	}
	return &model.PropertyThread{}, nil
}

func (m *mockThreadService) SendMessage(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error) {
	if m.sendMessageFn != nil {
		return m.sendMessageFn(ctx, input)
	}
	return &model.ThreadMessage{}, nil
}

func (m *mockThreadService) ListThreadsForProperty(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error) {
	if m.listThreadsFn != nil {
		return m.listThreadsFn(ctx, actorUserID, propertyID, limit)
	}
	return nil, nil
}

// --- POST /api/threads テスト ---

func TestThreadHandler_CreateThread_Success(t *testing.T) {
	now := time.Now()
	svc := &mockThreadService{
		createThreadFn: func(ctx context.Context, input thread.CreateThreadInput) (*model.PropertyThread, error) {
			if input.CreatorUserID != "renter-1" {
				t.Errorf("creatorUserID = %q, want %q", input.CreatorUserID, "renter-1")
			}
			if input.PropertyID != "prop-1" {
				t.Errorf("propertyID = %q, want %q", input.PropertyID, "prop-1")
			}
			if input.InitialBody != "内見できますか？" {
				t.Errorf("initialBody = %q", input.InitialBody)
			}
			return &model.PropertyThread{
				ID:              "thread-1",
				PropertyID:      input.PropertyID,
				CreatedByUserID: input.CreatorUserID,
				CreatedAt:       now,
			}, nil
		},
	}

	h := NewThreadHandler(svc)

	body := `{"property_id": "prop-1", "initial_body": "内見できますか？"}`
	req := httptest.NewRequest(http.MethodPost, "/api/threads", bytes.NewBufferString(body))
	req = withUserID(req, "renter-1")
	w := httptest.NewRecorder()

	h.CreateThread(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp threadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "thread-1" {
		t.Errorf("id = %q, want %q", resp.ID, "thread-1")
	}
}

func TestThreadHandler_CreateThread_PropertyNotFound_Returns404(t *testing.T) {
	svc := &mockThreadService{
		createThreadFn: func(ctx context.Context, input thread.CreateThreadInput) (*model.PropertyThread, error) {
			return nil, model.NewPropertyNotFoundError(input.PropertyID)
		},
	}

	h := NewThreadHandler(svc)

	body := `{"property_id": "missing"}`
	req := httptest.NewRequest(http.MethodPost, "/api/threads", bytes.NewBufferString(body))
	req = withUserID(req, "renter-1")
	w := httptest.NewRecorder()

	h.CreateThread(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- POST /api/threads/:id/messages テスト ---

func TestThreadHandler_SendMessage_Success(t *testing.T) {
	svc := &mockThreadService{
		sendMessageFn: func(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error) {
			if input.ThreadID != "thread-1" {
				t.Errorf("threadID = %q, want %q", input.ThreadID, "thread-1")
			}
			if input.Body != "はい、可能です。" {
				t.Errorf("body = %q", input.Body)
			}
			return &model.ThreadMessage{
				ID:           "msg-1",
				ThreadID:     input.ThreadID,
				SenderUserID: input.SenderUserID,
				MessageType:  model.MessageTypeText,
				Body:         input.Body,
			}, nil
		},
	}

	h := NewThreadHandler(svc)

	body := `{"body": "はい、可能です。"}`
	req := httptest.NewRequest(http.MethodPost, "/api/threads/thread-1/messages", bytes.NewBufferString(body))
	req = withUserID(req, "owner-1")
	req = withChiURLParam(req, "id", "thread-1")
	w := httptest.NewRecorder()

	h.SendMessage(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp messageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "msg-1" {
		t.Errorf("id = %q, want %q", resp.ID, "msg-1")
	}
	if resp.MessageType != "text" {
		t.Errorf("message_type = %q, want %q", resp.MessageType, "text")
	}
}

func TestThreadHandler_SendMessage_InvalidBody_Returns400(t *testing.T) {
	svc := &mockThreadService{
		sendMessageFn: func(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error) {
			return nil, model.NewInvalidMessageBodyError()
		},
	}

	h := NewThreadHandler(svc)

	body := `{"body": "   "}`
	req := httptest.NewRequest(http.MethodPost, "/api/threads/thread-1/messages", bytes.NewBufferString(body))
	req = withUserID(req, "owner-1")
	req = withChiURLParam(req, "id", "thread-1")
	w := httptest.NewRecorder()

	h.SendMessage(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeInvalidMessageBody {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeInvalidMessageBody)
	}
}

func TestThreadHandler_SendMessage_NotParticipant_Returns404(t *testing.T) {
	svc := &mockThreadService{
		sendMessageFn: func(ctx context.Context, input thread.SendMessageInput) (*model.ThreadMessage, error) {
			return nil, model.NewThreadNotFoundError(input.ThreadID)
		},
	}

	h := NewThreadHandler(svc)

	body := `{"body": "こんにちは"}`
	req := httptest.NewRequest(http.MethodPost, "/api/threads/thread-1/messages", bytes.NewBufferString(body))
	req = withUserID(req, "stranger-1")
	req = withChiURLParam(req, "id", "thread-1")
	w := httptest.NewRecorder()

	h.SendMessage(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- GET /api/properties/:id/threads テスト ---

func TestThreadHandler_ListThreads_Success(t *testing.T) {
	svc := &mockThreadService{
		listThreadsFn: func(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error) {
			if propertyID != "prop-1" {
				t.Errorf("propertyID = %q, want %q", propertyID, "prop-1")
			}
			if limit != 5 {
				t.Errorf("limit = %d, want 5", limit)
			}
			return []model.ThreadWithUnread{
				{
					PropertyThread: model.PropertyThread{ID: "thread-1", PropertyID: propertyID},
					UnreadCount:    3,
				},
			}, nil
		},
	}

	h := NewThreadHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/properties/prop-1/threads?limit=5", nil)
	req = withUserID(req, "owner-1")
	req = withChiURLParam(req, "id", "prop-1")
	w := httptest.NewRecorder()

	h.ListThreads(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp threadListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Threads) != 1 {
		t.Fatalf("len(threads) = %d, want 1", len(resp.Threads))
	}
	if resp.Threads[0].UnreadCount != 3 {
		t.Errorf("unread_count = %d, want 3", resp.Threads[0].UnreadCount)
	}
}

func TestThreadHandler_ListThreads_Forbidden_Returns403(t *testing.T) {
	svc := &mockThreadService{
		listThreadsFn: func(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error) {
			return nil, model.NewForbiddenError()
		},
	}

	h := NewThreadHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/properties/prop-1/threads", nil)
	req = withUserID(req, "stranger-1")
	req = withChiURLParam(req, "id", "prop-1")
	w := httptest.NewRecorder()

	h.ListThreads(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}
