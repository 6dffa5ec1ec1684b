// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// コアが返す型付き失敗シグナル。
// コア自身はログも復旧も行わず、境界（ハンドラー）がerrors.Is / errors.Asで
// 分類してユーザー向けレスポンスにマッピングする。
var (
	// ErrUnauthenticated はセッションが存在しない場合のシグナル。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden は操作者がリソースへの権限を持たない場合のシグナル。
	ErrForbidden = errors.New("forbidden")
	// ErrTerminalState は決定済み賃貸申込への状態遷移を拒否するシグナル。
	ErrTerminalState = errors.New("terminal state")
	// ErrInvalidStatus は認識できない遷移先状態を拒否するシグナル。
	ErrInvalidStatus = errors.New("invalid status")
	// ErrPropertyNotFound は物件が存在しないか論理削除済みの場合のシグナル。
	ErrPropertyNotFound = errors.New("property not found")
	// ErrRentalApplicationNotFound は賃貸申込が存在しない場合のシグナル。
	ErrRentalApplicationNotFound = errors.New("rental application not found")
	// ErrThreadNotFound はスレッドが存在しない場合のシグナル。
	ErrThreadNotFound = errors.New("thread not found")
)

// InvalidSessionUserError はセッションが参照するユーザーが
// アイデンティティストアに存在しない場合のエラー。
// 汎用エラーと区別することで、境界はエラーページではなく
// 強制サインアウトで反応できる。
type InvalidSessionUserError struct {
	UserID string
}

// Error はerrorインターフェースを実装する。
func (e *InvalidSessionUserError) Error() string {
	return fmt.Sprintf("session user does not exist: %s", e.UserID)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, marketplace, system
	Action   string // ユーザー向け対処方法

	cause error // 対応するシグナルエラー。errors.Isでの分類に使う
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は対応するシグナルエラーを返す。
// errors.Is(err, ErrTerminalState) のような分類を可能にする。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidSessionUser  = "INVALID_SESSION_USER"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeTerminalState       = "TERMINAL_STATE"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodePropertyNotFound    = "PROPERTY_NOT_FOUND"
	ErrCodeApplicationNotFound = "RENTAL_APPLICATION_NOT_FOUND"
	ErrCodeThreadNotFound      = "THREAD_NOT_FOUND"
	ErrCodeInvalidDocumentURL  = "INVALID_DOCUMENT_URL"
	ErrCodeInvalidMessageBody  = "INVALID_MESSAGE_BODY"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
		cause:    ErrUnauthenticated,
	}
}

// NewInvalidSessionUserError はセッションユーザー不整合エラーを生成する。
// 汎用エラーではなく、再サインインを促す。
func NewInvalidSessionUserError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSessionUser,
		Message:  "セッションが無効です。アカウント情報が見つかりませんでした。",
		Category: "auth",
		Action:   "一度サインアウトしてから、再度ログインしてください。",
	}
}

// NewInvalidRoleError は認識できないペルソナエラーを生成する。
func NewInvalidRoleError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なペルソナです: %s", value),
		Category: "validation",
		Action:   "renter、buyer、seller、agent のいずれかを指定してください。",
	}
}

// NewInvalidStatusError は認識できない決定状態エラーを生成する。
func NewInvalidStatusError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な状態です: %s", value),
		Category: "validation",
		Action:   "under_review、approved、rejected のいずれかを指定してください。",
		cause:    ErrInvalidStatus,
	}
}

// NewTerminalStateError は決定済み申込への遷移拒否エラーを生成する。
func NewTerminalStateError() *APIError {
	return &APIError{
		Code:     ErrCodeTerminalState,
		Message:  "この申込はすでに決定済みのため、状態を変更できません。",
		Category: "marketplace",
		Action:   "申込の現在の状態を確認してください。",
		cause:    ErrTerminalState,
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "物件のオーナーまたは担当エージェントのみ実行できます。",
		cause:    ErrForbidden,
	}
}

// NewPropertyNotFoundError は物件未検出エラーを生成する。
func NewPropertyNotFoundError(propertyID string) *APIError {
	return &APIError{
		Code:     ErrCodePropertyNotFound,
		Message:  fmt.Sprintf("指定された物件が見つかりません: %s", propertyID),
		Category: "marketplace",
		Action:   "物件IDを確認してください。",
		cause:    ErrPropertyNotFound,
	}
}

// NewApplicationNotFoundError は賃貸申込未検出エラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された賃貸申込が見つかりません: %s", applicationID),
		Category: "marketplace",
		Action:   "申込IDを確認してください。",
		cause:    ErrRentalApplicationNotFound,
	}
}

// NewThreadNotFoundError はスレッド未検出エラーを生成する。
func NewThreadNotFoundError(threadID string) *APIError {
	return &APIError{
		Code:     ErrCodeThreadNotFound,
		Message:  fmt.Sprintf("指定されたスレッドが見つかりません: %s", threadID),
		Category: "marketplace",
		Action:   "スレッドIDを確認してください。",
		cause:    ErrThreadNotFound,
	}
}

// NewInvalidDocumentURLError は添付ドキュメントURL拒否エラーを生成する。
func NewInvalidDocumentURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDocumentURL,
		Message:  fmt.Sprintf("無効なドキュメントURLです: %s", reason),
		Category: "validation",
		Action:   "公開されているhttps URLを指定してください。プライベートネットワークへのURLは許可されていません。",
	}
}

// NewInvalidMessageBodyError はメッセージ本文拒否エラーを生成する。
func NewInvalidMessageBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessageBody,
		Message:  "メッセージ本文が空か、長すぎます。",
		Category: "validation",
		Action:   "本文は1文字以上4000文字以内で入力してください。",
	}
}
