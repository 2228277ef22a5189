package manifest

import (
	"errors"
	"fmt"
	"net/http"
)

// Error はBaaS呼び出しの失敗を表す。
// BaaSは構造化されたエラー分類を公開しないため、ステータスコードとメッセージのみを保持する。
type Error struct {
	Op         string
	StatusCode int // 通信失敗時は0
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("manifest %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("manifest %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("manifest %s: %s", e.Op, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnauthorized は認証エラー（401/403）かどうかを返す。
func IsUnauthorized(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound は対象が存在しないエラー（404）かどうかを返す。
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}
