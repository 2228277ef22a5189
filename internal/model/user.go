// Package model はドメインモデルを定義する。
package model

import "time"

// User は外部BaaSが管理するユーザーを表す。
// このアプリケーションは読み取るだけで、作成・削除はBaaS側の責務。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// DisplayName は画面表示用の名前を返す。名前が未設定の場合はメールアドレスを返す。
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session はブラウザのCookieとBaaSのベアラートークンを紐付けるサーバー側レコード。
type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
