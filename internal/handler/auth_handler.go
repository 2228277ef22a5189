// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/view"
)

// SessionController はハンドラーが必要とするルートコントローラーのインターフェース。
// *session.Controller が満たす。
type SessionController interface {
	Load(ctx context.Context, sessionID string) *model.SessionState
	Login(ctx context.Context, email, password string) (*model.Session, *model.SessionState, error)
	Logout(ctx context.Context, sessionID string) *model.SessionState
}

// LoginRecorder はログイン試行の結果を記録する。metrics.Collectorが実装する。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	DemoEmail    string
	DemoPassword string
	Cookie       middleware.CookieConfig
}

// AuthHandler はデモログイン・ログアウト・セッション状態のHTTPハンドラー。
type AuthHandler struct {
	sessions SessionController
	renderer *view.Renderer
	recorder LoginRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(sessions SessionController, renderer *view.Renderer, recorder LoginRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		renderer: renderer,
		recorder: recorder,
		config:   config,
	}
}

// Login はデモアカウントでログインする。
// POST /login
// email / password が送信されなければ設定済みのデモ資格情報を使う。
// 成功時はセッションCookieを設定してルートへ303リダイレクトする。
// 失敗時はランディング画面に通知を表示し、セッションは作成しない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	if email == "" {
		email = h.config.DemoEmail
	}
	password := r.PostFormValue("password")
	if password == "" {
		password = h.config.DemoPassword
	}

	sess, state, err := h.sessions.Login(r.Context(), email, password)
	h.recordLogin(err == nil)
	if err != nil {
		writeHTML(w, http.StatusUnauthorized, func(out io.Writer) error {
			return h.renderer.Root(out, view.RootPage{
				CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
				AdminURL:  adminPath,
				Session:   model.LandingState(),
				Notice:    model.MsgLoginFailed,
			})
		})
		return
	}

	// ログイン済みのブラウザが再ログインした場合、以前のトークンを残さない
	if previous := middleware.SessionIDFromContext(r.Context()); previous != "" && previous != sess.ID {
		h.sessions.Logout(r.Context(), previous)
	}

	middleware.AnnotateUserID(r.Context(), state.User.ID)
	middleware.SetSessionCookie(w, sess.ID, h.config.Cookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄してランディング画面へ戻す。
// POST /logout
// ストアの削除に失敗してもCookieはクリアする。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), middleware.SessionIDFromContext(r.Context()))
	middleware.ClearSessionCookie(w, h.config.Cookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Session は現在のセッション状態をJSONで返す。
// GET /api/session
// 未ログインでも200で {"user": null, "screen": "landing"} を返す。
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	state := h.sessions.Load(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if state.Authenticated() {
		middleware.AnnotateUserID(r.Context(), state.User.ID)
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *AuthHandler) recordLogin(success bool) {
	if h.recorder != nil {
		h.recorder.RecordLogin(success)
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
