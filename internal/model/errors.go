package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, backend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeLoginFailed      = "LOGIN_FAILED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeBackendFailed    = "BACKEND_FAILED"
	ErrCodeVarietyNotFound  = "VARIETY_NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// 画面に表示するメッセージ
const (
	MsgLoginFailed   = "Login failed. Please check your credentials."
	MsgFetchFailed   = "Could not load your apple varieties. Please try again later."
	MsgSaveFailed    = "Could not save the variety. Please check the form and try again."
	MsgDeleteFailed  = "Could not delete the variety."
	MsgConfirmDelete = "Are you sure you want to delete this variety?"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  MsgLoginFailed,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, message),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewBackendFailedError はBaaS呼び出し失敗エラーを生成する。
func NewBackendFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendFailed,
		Message:  message,
		Category: "backend",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewVarietyNotFoundError は品種未検出エラーを生成する。
func NewVarietyNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeVarietyNotFound,
		Message:  fmt.Sprintf("指定された品種が見つかりません: %s", id),
		Category: "validation",
		Action:   "一覧を再読み込みしてください。",
	}
}
