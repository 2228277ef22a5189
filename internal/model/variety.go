package model

import (
	"strings"
	"time"
)

// ImageSize は画像の1サイズ分のURLを表す。
type ImageSize struct {
	URL string `json:"url"`
}

// VarietyImage はBaaSが生成した画像サイズ群。
type VarietyImage struct {
	Thumbnail *ImageSize `json:"thumbnail,omitempty"`
}

// AppleVariety はユーザーが所有するりんご品種レコード。
// ID、CreatedAt、OwnerはBaaSが割り当てる。
type AppleVariety struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Origin       string        `json:"origin"`
	TastingNotes string        `json:"tastingNotes"`
	HarvestDate  string        `json:"harvestDate"`
	Image        *VarietyImage `json:"image,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Owner        *User         `json:"owner,omitempty"`
}

// ThumbnailURL はサムネイル画像のURLを返す。未設定の場合は空文字列。
func (v *AppleVariety) ThumbnailURL() string {
	if v.Image == nil || v.Image.Thumbnail == nil {
		return ""
	}
	return v.Image.Thumbnail.URL
}

// VarietyForm は作成・編集フォームの状態を表す。
// すべて自由入力で、必須はTitleのみ。
type VarietyForm struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Origin       string `json:"origin"`
	TastingNotes string `json:"tastingNotes"`
	HarvestDate  string `json:"harvestDate"`
}

// FormFromVariety は既存レコードからフォーム状態を生成する。
// 収穫日は日付部分（YYYY-MM-DD）のみに正規化する。
func FormFromVariety(v *AppleVariety) VarietyForm {
	return VarietyForm{
		Title:        v.Title,
		Description:  v.Description,
		Origin:       v.Origin,
		TastingNotes: v.TastingNotes,
		HarvestDate:  NormalizeDate(v.HarvestDate),
	}
}

// NormalizeDate はISO 8601の日時文字列から日付部分を取り出す。
func NormalizeDate(s string) string {
	date, _, _ := strings.Cut(s, "T")
	return date
}

// Validate は入力制約を検証する。Titleが空の場合はエラーを返す。
func (f VarietyForm) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return NewValidationError("title", "Name is required.")
	}
	return nil
}

// IsZero はすべてのフィールドが空かどうかを返す。
func (f VarietyForm) IsZero() bool {
	return f == VarietyForm{}
}

// Fields はBaaSへ送信するフィールドを返す。
// 収穫日が空の場合はnullを送信する。
func (f VarietyForm) Fields() map[string]any {
	fields := map[string]any{
		"title":        f.Title,
		"description":  f.Description,
		"origin":       f.Origin,
		"tastingNotes": f.TastingNotes,
		"harvestDate":  nil,
	}
	if f.HarvestDate != "" {
		fields["harvestDate"] = f.HarvestDate
	}
	return fields
}
