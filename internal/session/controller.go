// Package session はブラウザセッションとBaaS上のユーザー識別を結び付けるルートコントローラーを提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/appledex/internal/manifest"
	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/repository"
)

// ErrNoIdentity はログイン直後の本人確認でユーザーが得られなかったことを示す。
var ErrNoIdentity = errors.New("identity not returned after login")

// Authenticator はBaaSの認証APIのうちコントローラーが使用する部分。
// *manifest.Client が満たす。
type Authenticator interface {
	Login(ctx context.Context, entity, email, password string) (string, error)
	Me(ctx context.Context, entity, token string) (*model.User, error)
}

// Config はルートコントローラーの設定。
type Config struct {
	Entity string        // 認証対象のエンティティ（既定: users）
	MaxAge time.Duration // セッションの最大有効期間
}

// Controller はセッション状態の導出とログイン・ログアウトを担う。
// 状態は保持せず、呼び出しごとに model.SessionState を返す。
type Controller struct {
	auth     Authenticator
	sessions repository.SessionRepository
	config   Config
	now      func() time.Time
}

// NewController はControllerを生成する。
func NewController(auth Authenticator, sessions repository.SessionRepository, config Config) *Controller {
	if config.Entity == "" {
		config.Entity = manifest.UsersEntity
	}
	return &Controller{
		auth:     auth,
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// Load はセッションIDから現在のユーザーを解決する。
// 有効なユーザーが得られればダッシュボード、それ以外はすべてランディングになる。
// 未ログインは想定された状態でありエラーとしては扱わない。
func (c *Controller) Load(ctx context.Context, sessionID string) (state *model.SessionState) {
	state = model.NewLoadingState()
	defer func() { state.IsLoading = false }()

	if sessionID == "" {
		return state
	}

	sess, err := c.sessions.FindByID(ctx, sessionID)
	if err != nil {
		slog.Debug("session lookup failed", slog.String("error", err.Error()))
		return state
	}
	if sess == nil {
		slog.Debug("session not found or expired")
		return state
	}

	user, err := c.auth.Me(ctx, c.config.Entity, sess.Token)
	if err != nil {
		slog.Debug("identity check failed",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return state
	}
	if user == nil {
		return state
	}

	state.User = user
	state.Token = sess.Token
	state.Screen = model.ScreenDashboard
	return state
}

// Login はBaaSで認証し、本人確認に成功した場合のみセッションを作成する。
// 失敗時はセッションを作らずエラーを返す。呼び出し側は直前の状態（ランディング）を維持する。
func (c *Controller) Login(ctx context.Context, email, password string) (*model.Session, *model.SessionState, error) {
	token, err := c.auth.Login(ctx, c.config.Entity, email, password)
	if err != nil {
		slog.Error("login failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	user, err := c.auth.Me(ctx, c.config.Entity, token)
	if err != nil {
		slog.Error("identity check after login failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("failed to fetch identity: %w", err)
	}
	if user == nil {
		slog.Error("identity check after login returned no user", slog.String("email", email))
		return nil, nil, ErrNoIdentity
	}

	sess, err := c.createSession(ctx, token, user.ID)
	if err != nil {
		slog.Error("failed to create session", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return sess, &model.SessionState{User: user, Token: token, Screen: model.ScreenDashboard}, nil
}

// Logout はセッションを破棄する。BaaSにはサーバー側のサインアウトがないため、
// トークンを捨てることがサインアウトになる。結果は常にランディング状態。
func (c *Controller) Logout(ctx context.Context, sessionID string) *model.SessionState {
	if sessionID != "" {
		if err := c.sessions.DeleteByID(ctx, sessionID); err != nil {
			slog.Error("failed to delete session", slog.String("error", err.Error()))
		} else {
			slog.Info("user logged out")
		}
	}
	return model.LandingState()
}

func (c *Controller) createSession(ctx context.Context, token, userID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := c.now()
	sess := &model.Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		ExpiresAt: sessionExpiry(now, c.config.MaxAge, token),
		CreatedAt: now,
	}
	if err := c.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// sessionExpiry はセッションの有効期限を返す。
// トークンがexpクレームを持つJWTであれば、最大有効期間とexpの早い方を採用する。
func sessionExpiry(now time.Time, maxAge time.Duration, token string) time.Time {
	expiresAt := now.Add(maxAge)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expiresAt) {
		return exp
	}
	return expiresAt
}

// tokenExpiry はトークンのexpクレームを署名検証なしで読み取る。
// 署名の検証はBaaSの責務であり、ここでは期限の参照にのみ使う。
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
