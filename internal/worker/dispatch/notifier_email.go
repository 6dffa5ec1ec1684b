package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/notification"
	"github.com/hitoshi/estately/internal/repository"
)

// Mailer はメール送信のインターフェース。
type Mailer interface {
	// Send は指定アドレスにメールを送信する。
	Send(ctx context.Context, toEmail, subject, body string) error
}

// LogMailer は実際の送信を行わず、送信内容をログに記録するMailer。
// メール基盤が未接続の環境で使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerの新しいインスタンスを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

var _ Mailer = (*LogMailer)(nil)

// Send は送信内容をログに記録する。
func (m *LogMailer) Send(ctx context.Context, toEmail, subject, body string) error {
	m.logger.Info("メールを送信しました（ログ出力のみ）",
		slog.String("to", toEmail),
		slog.String("subject", subject),
	)
	return nil
}

// EmailNotifier はメールチャネルのノーティファイア。
// 通知先ユーザーのメールアドレスをアイデンティティストアから解決して送信する。
type EmailNotifier struct {
	mailer        Mailer
	userRepo      repository.UserRepository
	notifications *notification.Service
}

// NewEmailNotifier はEmailNotifierの新しいインスタンスを生成する。
func NewEmailNotifier(mailer Mailer, userRepo repository.UserRepository, notifications *notification.Service) *EmailNotifier {
	return &EmailNotifier{
		mailer:        mailer,
		userRepo:      userRepo,
		notifications: notifications,
	}
}

var _ Notifier = (*EmailNotifier)(nil)

// Deliver は通知先ユーザーごとにメールを送信する。
// ユーザーが見つからない場合はスキップする（退会済みユーザーへの配信は不要）。
func (n *EmailNotifier) Deliver(ctx context.Context, event *model.DomainEvent, entry *model.EventOutboxEntry) error {
	payload, err := ParsePayload(event)
	if err != nil {
		return fmt.Errorf("failed to parse event payload: %w", err)
	}

	subject, body := notificationContent(event.EventType, payload)

	for _, userID := range payload.RecipientUserIDs {
		enabled, err := n.notifications.ChannelEnabled(ctx, userID, event.EventType, model.ChannelEmail)
		if err != nil {
			return err
		}
		if !enabled {
			continue
		}

		user, err := n.userRepo.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			continue
		}

		if err := n.mailer.Send(ctx, user.Email, subject, body); err != nil {
			return err
		}
	}

	return nil
}
