package manifest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// FindOptions は一覧取得の並び順と展開するリレーションを指定する。
type FindOptions struct {
	OrderBy   string
	Desc      bool
	Relations []string
}

// query はFindOptionsをクエリパラメータに変換する。
func (o FindOptions) query() url.Values {
	q := url.Values{}
	if o.OrderBy != "" {
		q.Set("orderBy", o.OrderBy)
		if o.Desc {
			q.Set("order", "DESC")
		} else {
			q.Set("order", "ASC")
		}
	}
	if len(o.Relations) > 0 {
		q.Set("relations", strings.Join(o.Relations, ","))
	}
	return q
}

// Collection は1つのコレクションに対する操作を提供する。
type Collection struct {
	client *Client
	slug   string
}

// From はコレクション操作の起点を返す。
func (c *Client) From(slug string) *Collection {
	return &Collection{client: c, slug: slug}
}

func (col *Collection) path() string {
	return "/collections/" + url.PathEscape(col.slug)
}

func (col *Collection) itemPath(id string) string {
	return col.path() + "/" + url.PathEscape(id)
}

// Find はコレクションのレコード一覧を取得し、outにデコードする。
// outはスライスへのポインタを渡す。ページネーション形式（{"data": [...]}）と
// 配列形式の両方のレスポンスを受け付ける。
// GET {base}/collections/{slug}
func (col *Collection) Find(ctx context.Context, token string, opts FindOptions, out any) error {
	op := col.slug + ".find"
	body, err := col.client.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   col.path(),
		token:  token,
		query:  opts.query(),
	})
	if err != nil {
		return err
	}

	raw := body
	if data := gjson.GetBytes(body, "data"); data.IsArray() {
		raw = []byte(data.Raw)
	} else if !gjson.ParseBytes(body).IsArray() {
		return &Error{Op: op, Message: "unexpected list response"}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Message: "failed to decode list response", Err: err}
	}
	return nil
}

// Create はレコードを作成し、作成結果をoutにデコードする。outがnilの場合は破棄する。
// POST {base}/collections/{slug}
func (col *Collection) Create(ctx context.Context, token string, fields map[string]any, out any) error {
	op := col.slug + ".create"
	body, err := col.client.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   col.path(),
		token:  token,
		body:   fields,
	})
	if err != nil {
		return err
	}
	return decodeItem(op, body, out)
}

// Update はIDで指定したレコードを更新し、更新結果をoutにデコードする。
// PUT {base}/collections/{slug}/{id}
func (col *Collection) Update(ctx context.Context, token, id string, fields map[string]any, out any) error {
	op := col.slug + ".update"
	if id == "" {
		return &Error{Op: op, Message: "id is required"}
	}
	body, err := col.client.do(ctx, request{
		op:     op,
		method: http.MethodPut,
		path:   col.itemPath(id),
		token:  token,
		body:   fields,
	})
	if err != nil {
		return err
	}
	return decodeItem(op, body, out)
}

// Delete はIDで指定したレコードを削除する。
// DELETE {base}/collections/{slug}/{id}
func (col *Collection) Delete(ctx context.Context, token, id string) error {
	op := col.slug + ".delete"
	if id == "" {
		return &Error{Op: op, Message: "id is required"}
	}
	_, err := col.client.do(ctx, request{
		op:     op,
		method: http.MethodDelete,
		path:   col.itemPath(id),
		token:  token,
	})
	return err
}

func decodeItem(op string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Message: "failed to decode item", Err: err}
	}
	return nil
}
