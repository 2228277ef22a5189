// Package view はサーバーサイドでレンダリングする画面テンプレートを提供する。
//
// テンプレートはバイナリに埋め込み、起動時に一度だけパースする。
// 各画面は共通レイアウト（layout.html）の "title" と "content" を定義する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/hitoshi/appledex/internal/dashboard"
	"github.com/hitoshi/appledex/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面テンプレート名
const (
	PageLoading       = "loading"
	PageLanding       = "landing"
	PageDashboard     = "dashboard"
	PageConfirmDelete = "confirm_delete"
)

var pageNames = []string{PageLoading, PageLanding, PageDashboard, PageConfirmDelete}

// ImageURLFilter はカードに埋め込む画像URLを検証する。
// security.SSRFGuardServiceが満たす。
type ImageURLFilter interface {
	SafeImageURL(rawURL string) string
}

// TextFormatter はプレーンテキストを改行付きのHTMLに変換する。
// security.TextFormatterServiceが満たす。
type TextFormatter interface {
	FormatMultiline(text string) template.HTML
}

// RootPage はルート画面（読み込み中・ランディング・ダッシュボード）の描画データ。
type RootPage struct {
	CSRFToken string
	AdminURL  string
	Session   *model.SessionState
	Notice    string // ランディング画面に表示する通知（ログイン失敗など）
	Dashboard *dashboard.Controller
}

// ConfirmDeletePage は削除確認画面の描画データ。
type ConfirmDeletePage struct {
	CSRFToken string
	Message   string
	Variety   model.AppleVariety
}

// Renderer はパース済みテンプレートを保持する。並行利用できる。
type Renderer struct {
	pages map[string]*template.Template
}

// New はテンプレートをパースしてRendererを生成する。
// imagesがnilの場合はサムネイルURLを検証せずにそのまま使用する。
// textがnilの場合、複数行テキストは改行なしでエスケープして表示する。
func New(images ImageURLFilter, text TextFormatter) (*Renderer, error) {
	funcs := template.FuncMap{
		"multiline": func(s string) template.HTML {
			if text == nil {
				return template.HTML(template.HTMLEscapeString(s))
			}
			return text.FormatMultiline(s)
		},
		"thumbnail": func(v model.AppleVariety) string {
			if images == nil {
				return v.ThumbnailURL()
			}
			return images.SafeImageURL(v.ThumbnailURL())
		},
	}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		layout, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout for %s: %w", name, err)
		}
		page, err := layout.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		pages[name] = page
	}

	return &Renderer{pages: pages}, nil
}

// Render は指定した画面を描画する。
// 途中で失敗した場合に不完全なHTMLを書き出さないよう、バッファに描画してから書き込む。
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	page, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page: %s", name)
	}

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RootPageName はセッション状態から表示する画面を決定する。
// 読み込み中はプレースホルダーのみ、認証済みならダッシュボード、それ以外はランディング。
func RootPageName(state *model.SessionState) string {
	switch {
	case state == nil || state.IsLoading:
		return PageLoading
	case state.Authenticated() && state.Screen == model.ScreenDashboard:
		return PageDashboard
	default:
		return PageLanding
	}
}

// Root はセッション状態に応じたルート画面を描画する。
func (r *Renderer) Root(w io.Writer, page RootPage) error {
	name := RootPageName(page.Session)
	if name == PageDashboard && page.Dashboard == nil {
		return fmt.Errorf("dashboard state is required for %s", name)
	}
	return r.Render(w, name, page)
}

// ConfirmDelete は削除確認画面を描画する。
func (r *Renderer) ConfirmDelete(w io.Writer, page ConfirmDeletePage) error {
	if page.Message == "" {
		page.Message = model.MsgConfirmDelete
	}
	return r.Render(w, PageConfirmDelete, page)
}
