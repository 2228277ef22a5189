package security

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextFormatterService はプレーンテキストを表示用のHTMLに変換する。
type TextFormatterService interface {
	// FormatMultiline は改行を<br>に置き換えたHTMLを返す。
	// テキストはすべてエスケープされ、元の文字列は欠落しない。
	FormatMultiline(text string) template.HTML
}

// textFormatter はTextFormatterServiceの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textFormatter struct {
	policy *bluemonday.Policy
}

// NewTextFormatter はbrのみを許可するポリシーでTextFormatterServiceを生成する。
func NewTextFormatter() *textFormatter {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("br")
	return &textFormatter{policy: policy}
}

var newlineReplacer = strings.NewReplacer("\r\n", "<br>", "\n", "<br>", "\r", "<br>")

// FormatMultiline はテキストをエスケープしてから改行を<br>に置き換える。
// エスケープ後の文字列でタグとして解釈されるのは挿入した<br>だけで、
// ポリシーはそれ以外の要素が出力に含まれないことを保証する。
func (f *textFormatter) FormatMultiline(text string) template.HTML {
	if text == "" {
		return ""
	}
	escaped := newlineReplacer.Replace(html.EscapeString(text))
	return template.HTML(f.policy.Sanitize(escaped))
}
