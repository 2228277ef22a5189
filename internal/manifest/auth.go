package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/hitoshi/appledex/internal/model"
)

// UsersEntity は認証に用いるエンティティのスラッグ。
const UsersEntity = "users"

// loginResponse はログインAPIのレスポンス。
type loginResponse struct {
	Token string `json:"token"`
}

// Login はメールアドレスとパスワードで認証し、ベアラートークンを返す。
// POST {base}/auth/{entity}/login
func (c *Client) Login(ctx context.Context, entity, email, password string) (string, error) {
	op := entity + ".login"
	body, err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/auth/" + url.PathEscape(entity) + "/login",
		body: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Op: op, Message: "failed to decode login response", Err: err}
	}
	if resp.Token == "" {
		return "", &Error{Op: op, Message: "login response has no token"}
	}
	return resp.Token, nil
}

// Me はトークンに対応する現在のユーザーを返す。
// BaaSがnullを返した場合は(nil, nil)を返す。
// GET {base}/auth/{entity}/me
func (c *Client) Me(ctx context.Context, entity, token string) (*model.User, error) {
	op := entity + ".me"
	if token == "" {
		return nil, &Error{Op: op, StatusCode: http.StatusUnauthorized, Message: "no token"}
	}

	body, err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/auth/" + url.PathEscape(entity) + "/me",
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal(trimmed, &user); err != nil {
		return nil, &Error{Op: op, Message: "failed to decode user", Err: err}
	}
	if user.ID == "" && user.Email == "" {
		return nil, nil
	}
	return &user, nil
}
