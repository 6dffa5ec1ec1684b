package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/security"
)

// pushTimeout はWebhook送信のタイムアウト。
const pushTimeout = 10 * time.Second

// PushNotifier はプッシュ通知チャネルのノーティファイア。
// 設定されたWebhook URLにイベントをJSONでPOSTする。
// HTTPクライアントはSSRF防止機能付きで、内部ネットワーク宛の
// リクエストを拒否する。
type PushNotifier struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
}

// NewPushNotifier はPushNotifierの新しいインスタンスを生成する。
// webhookURLが空の場合、配信はログ記録のみで成功扱いになる。
func NewPushNotifier(guard security.SSRFGuardService, webhookURL string, logger *slog.Logger) *PushNotifier {
	return &PushNotifier{
		client:     guard.NewSafeClient(pushTimeout),
		webhookURL: webhookURL,
		logger:     logger,
	}
}

var _ Notifier = (*PushNotifier)(nil)

// pushRequest はWebhookに送信するリクエストボディ。
type pushRequest struct {
	EventID          string          `json:"eventId"`
	EventType        string          `json:"eventType"`
	RecipientUserIDs []string        `json:"recipientUserIds"`
	Payload          json.RawMessage `json:"payload"`
	OccurredAt       time.Time       `json:"occurredAt"`
}

// Deliver はイベントをWebhookにPOSTする。2xx以外のレスポンスはエラーとして
// リトライ対象になる。
func (n *PushNotifier) Deliver(ctx context.Context, event *model.DomainEvent, entry *model.EventOutboxEntry) error {
	if n.webhookURL == "" {
		n.logger.Info("プッシュWebhookが未設定のため配信をスキップしました",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.EventType),
		)
		return nil
	}

	payload, err := ParsePayload(event)
	if err != nil {
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	body, err := json.Marshal(pushRequest{
		EventID:          event.ID,
		EventType:        event.EventType,
		RecipientUserIDs: payload.RecipientUserIDs,
		Payload:          event.Payload,
		OccurredAt:       event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post push webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push webhook returned status %d", resp.StatusCode)
	}

	return nil
}
