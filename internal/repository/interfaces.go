// Package repository はデータ永続化のインターフェースを定義する。
//
// Queryerを引数に取るメソッドは、呼び出し側のトランザクションに参加できる。
// サービス層はTxBeginnerで開始したTxを渡すことで、複数リポジトリにまたがる
// 書き込みを1つのアトミックなトランザクションとしてコミットする。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/estately/internal/model"
)

// UserRepository はユーザーデータの読み取りインターフェース。
// ユーザー行は認証プロバイダーが所有し、コアは存在確認のみ行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの読み取りインターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// InvitationRepository は組織招待の読み取りインターフェース。
// 招待テーブルは外部コラボレータが所有し、コアは読み取りのみ行う。
type InvitationRepository interface {
	// FindPendingByEmail は指定メールアドレス宛の保留中招待のうち、
	// 有効期限が最も遅いものを1件返す。見つからない場合はnilを返す。
	// 有効期限が同一の場合は招待IDの降順で決定的に選択する。
	FindPendingByEmail(ctx context.Context, email string) (*model.Invitation, error)
}

// PersonaRepository はペルソナ3テーブルとプロフィールメタデータの永続化インターフェース。
type PersonaRepository interface {
	// FindPrimaryRole はユーザーの主ペルソナレコードを取得する。
	// 行が存在しない場合はnilを返す（未割り当ては正常状態）。
	FindPrimaryRole(ctx context.Context, userID string) (*model.PrimaryRole, error)

	// ListRoles はユーザーが保持するペルソナ集合を重複なしで返す。
	ListRoles(ctx context.Context, userID string) ([]model.Role, error)

	// PersistPersona は主ロール・メンバーシップ・割り当ての3テーブルを
	// 1つのトランザクションで冪等にUPSERTする。
	// setPrimaryがtrueの場合、他の未削除割り当てのis_primaryを同一
	// トランザクション内で降格する。
	PersistPersona(ctx context.Context, userID string, role model.Role, setPrimary bool) error

	// FindLatestProfile はユーザーの最新プロフィールを取得する。
	// 見つからない場合はnilを返す。
	FindLatestProfile(ctx context.Context, userID string) (*model.UserProfile, error)

	// CreateProfile はプロフィールを新規作成する（メタデータの遅延作成）。
	CreateProfile(ctx context.Context, userID string, metadata model.PersonaMetadata) error

	// UpdateProfileMetadata は指定プロフィールのメタデータを差し替える。
	// マージ処理は呼び出し側（サービス層）の責務。
	UpdateProfileMetadata(ctx context.Context, profileID string, metadata model.PersonaMetadata) error
}

// EventRepository はドメインイベントとアウトボックスエントリの作成インターフェース。
// プロデューサーはエントリの挿入のみ行い、更新は一切行わない。
type EventRepository interface {
	// InsertEvent は不変のドメインイベントを1件挿入し、採番されたIDと
	// occurred_atをeventに書き戻す。
	InsertEvent(ctx context.Context, q Queryer, event *model.DomainEvent) error

	// InsertOutboxEntries はイベントに対するチャネルごとの配信意図を挿入する。
	// すべてstatus = pending、attempt_count = 0で作成される。
	InsertOutboxEntries(ctx context.Context, q Queryer, eventID string, channels []model.NotificationChannel) error

	// FindEventByID は指定IDのドメインイベントを取得する。見つからない場合はnilを返す。
	FindEventByID(ctx context.Context, id string) (*model.DomainEvent, error)

	// ListOutboxByEventID はイベントに紐づくアウトボックスエントリを返す。
	ListOutboxByEventID(ctx context.Context, eventID string) ([]*model.EventOutboxEntry, error)
}

// OutboxRepository はディスパッチャによる配信状態管理のインターフェース。
// アウトボックス行の更新はディスパッチャのみが行う。
type OutboxRepository interface {
	// ClaimDue は配信期限が到来したpendingエントリを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	// next_attempt_atがNULL（未試行）またはnow以前のエントリが対象。
	ClaimDue(ctx context.Context, tx Tx, limit int, now time.Time) ([]*model.EventOutboxEntry, error)

	// MarkSent はエントリを配信済みにする。
	MarkSent(ctx context.Context, q Queryer, id string, attemptCount int) error

	// MarkRetry は失敗したエントリに次回試行時刻とエラーを記録する。
	MarkRetry(ctx context.Context, q Queryer, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error

	// MarkFailed はリトライ上限に達したエントリを終端の失敗状態にする。
	MarkFailed(ctx context.Context, q Queryer, id string, attemptCount int, lastError string) error
}

// PropertyRepository は物件データの読み取りインターフェース。
// 物件のCRUDは外部コラボレータの責務で、コアは所有関係の解決のみ行う。
type PropertyRepository interface {
	// FindByID は指定IDの物件を取得する。
	// 見つからない場合と論理削除済みの場合はnilを返す。
	FindByID(ctx context.Context, q Queryer, id string) (*model.Property, error)
}

// ListRentalApplicationsOptions は賃貸申込一覧のフィルタ条件。
type ListRentalApplicationsOptions struct {
	// PropertyID が指定された場合は物件単位の一覧（モデレーター向け）。
	PropertyID string
	// ApplicantUserID が指定された場合は申込者単位の一覧。
	ApplicantUserID string
	Status          model.RentalApplicationStatus
	Limit           int
	Cursor          string
}

// RentalApplicationRepository は賃貸申込の永続化インターフェース。
type RentalApplicationRepository interface {
	// FindByID は指定IDの申込を取得する。論理削除済みまたは未検出の場合はnilを返す。
	FindByID(ctx context.Context, q Queryer, id string) (*model.RentalApplication, error)

	// Create は申込を作成し、採番されたIDをappに書き戻す。
	Create(ctx context.Context, q Queryer, app *model.RentalApplication) error

	// CreateSnapshot は提出時点のペイロードを保存する。
	CreateSnapshot(ctx context.Context, q Queryer, snapshot *model.RentalApplicationSnapshot) error

	// CreateDocuments は添付ドキュメントをまとめて保存する。
	CreateDocuments(ctx context.Context, q Queryer, documents []model.RentalApplicationDocument) error

	// UpdateDecision は申込の状態と決定フィールドを更新する。
	UpdateDecision(ctx context.Context, q Queryer, app *model.RentalApplication) error

	// List はフィルタ条件に合致する申込をcreated_at降順・ID降順の
	// カーソルページネーションで返す。limit+1件取得しhasMoreを判定する。
	List(ctx context.Context, opts ListRentalApplicationsOptions) ([]*model.RentalApplication, bool, error)
}

// ThreadRepository は物件スレッドの永続化インターフェース。
type ThreadRepository interface {
	// CreateThread はスレッドを作成し、採番されたIDをthreadに書き戻す。
	CreateThread(ctx context.Context, q Queryer, thread *model.PropertyThread) error

	// AddParticipants は参加者をまとめて追加する。
	AddParticipants(ctx context.Context, q Queryer, participants []model.ThreadParticipant) error

	// FindParticipant はスレッドのアクティブな参加者を取得する。
	// 未参加または離脱済み（left_at設定済み）の場合はnilを返す。
	FindParticipant(ctx context.Context, threadID, userID string) (*model.ThreadParticipant, error)

	// ListParticipants はスレッドのアクティブな参加者をすべて返す。
	ListParticipants(ctx context.Context, q Queryer, threadID string) ([]model.ThreadParticipant, error)

	// CreateMessage はメッセージを作成し、採番されたIDをmsgに書き戻す。
	CreateMessage(ctx context.Context, q Queryer, msg *model.ThreadMessage) error

	// TouchLastMessageAt はスレッドの最終メッセージ時刻を更新する。
	TouchLastMessageAt(ctx context.Context, q Queryer, threadID string, at time.Time) error

	// UpsertReadState は送信者自身の既読位置を冪等にUPSERTする。
	UpsertReadState(ctx context.Context, q Queryer, state *model.MessageReadState) error

	// ListByPropertyWithUnread は指定物件のスレッド一覧を、
	// actorUserIDが参加しているものに限定し未読数付きで返す。
	ListByPropertyWithUnread(ctx context.Context, actorUserID, propertyID string, limit int) ([]model.ThreadWithUnread, error)
}

// NotificationRepository はアプリ内通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成し、採番されたIDをnotificationに書き戻す。
	Create(ctx context.Context, notification *model.Notification) error

	// ListByUser はユーザーの通知一覧をcreated_at降順・ID降順の
	// カーソルページネーションで返す。
	ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, bool, error)

	// UpsertPreference はイベント種別ごとの配信設定を冪等にUPSERTする。
	UpsertPreference(ctx context.Context, pref *model.NotificationPreference) error

	// FindPreference は指定ユーザー・イベント種別の配信設定を取得する。
	// 見つからない場合はnilを返す（デフォルト設定が適用される）。
	FindPreference(ctx context.Context, userID, eventType string) (*model.NotificationPreference, error)
}
