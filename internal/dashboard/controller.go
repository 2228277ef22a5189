// Package dashboard はダッシュボード画面の状態遷移（一覧・作成/編集フォーム・削除）を提供する。
//
// Controllerはリクエストごとに生成する。変更操作の後は必ずBaaSから一覧を再取得し、
// 楽観的な更新は行わない。
package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/repository"
)

// ErrNotConfirmed は削除が確認されなかったことを示す。
var ErrNotConfirmed = errors.New("delete not confirmed")

// Controller はダッシュボードの状態を保持する。
type Controller struct {
	Varieties []model.AppleVariety
	IsLoading bool
	Error     string // 一覧取得失敗時のメッセージ
	ShowForm  bool
	Form      model.VarietyForm
	Editing   *model.AppleVariety // nilなら作成モード
	Alert     string              // 保存・削除失敗時のメッセージ

	fetched bool
	repo    repository.VarietyRepository
	token   string
}

// New はユーザーのトークンに紐付いたControllerを生成する。
func New(repo repository.VarietyRepository, token string) *Controller {
	return &Controller{repo: repo, token: token}
}

// Fetch は一覧を再取得する。失敗時は直前の一覧を残したままErrorを設定する。
func (c *Controller) Fetch(ctx context.Context) error {
	c.IsLoading = true
	c.Error = ""
	defer func() { c.IsLoading = false }()

	varieties, err := c.repo.List(ctx, c.token)
	if err != nil {
		slog.Error("failed to fetch varieties", slog.String("error", err.Error()))
		c.Error = model.MsgFetchFailed
		return err
	}

	c.Varieties = varieties
	c.fetched = true
	return nil
}

// OpenCreate は空の作成フォームを開く。
func (c *Controller) OpenCreate() {
	c.Form = model.VarietyForm{}
	c.Editing = nil
	c.ShowForm = true
}

// Toggle はフォームの表示を切り替える。閉じる場合は入力内容も破棄する。
func (c *Controller) Toggle() {
	if c.ShowForm {
		c.Reset()
		return
	}
	c.OpenCreate()
}

// Edit は既存レコードの内容をフォームへ写し、編集モードで開く。
func (c *Controller) Edit(v model.AppleVariety) {
	c.Form = model.FormFromVariety(&v)
	c.Editing = &v
	c.ShowForm = true
}

// Submit はフォームを送信する。編集モードなら更新、作成モードなら作成する。
// 成功時はフォームをリセットして一覧を再取得する。失敗時はフォームを残しAlertを設定する。
func (c *Controller) Submit(ctx context.Context) error {
	c.Alert = ""
	if err := c.Form.Validate(); err != nil {
		c.ShowForm = true
		c.Alert = err.Error()
		return err
	}

	var err error
	if c.Editing != nil {
		_, err = c.repo.Update(ctx, c.token, c.Editing.ID, c.Form)
	} else {
		_, err = c.repo.Create(ctx, c.token, c.Form)
	}
	if err != nil {
		slog.Error("failed to save variety", slog.String("error", err.Error()))
		c.ShowForm = true
		c.Alert = model.MsgSaveFailed
		return err
	}

	c.Reset()
	c.Fetch(ctx)
	return nil
}

// Delete は確認済みの場合のみ削除し、一覧を再取得する。
// 未確認の場合はBaaSを呼ばず状態も変えない。
func (c *Controller) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}

	c.Alert = ""
	if err := c.repo.Delete(ctx, c.token, id); err != nil {
		slog.Error("failed to delete variety", slog.String("variety_id", id), slog.String("error", err.Error()))
		c.Alert = model.MsgDeleteFailed
		return err
	}

	c.Fetch(ctx)
	return nil
}

// Reset はフォームを空にし、編集対象を解除して閉じる。
func (c *Controller) Reset() {
	c.Form = model.VarietyForm{}
	c.Editing = nil
	c.ShowForm = false
}

// IsEmpty は取得に成功し、かつ0件であるかを返す。
func (c *Controller) IsEmpty() bool {
	return c.fetched && len(c.Varieties) == 0
}

// IsEditing は編集モードかどうかを返す。
func (c *Controller) IsEditing() bool {
	return c.Editing != nil
}

// Find は取得済みの一覧から指定IDのレコードを返す。
func (c *Controller) Find(id string) (model.AppleVariety, bool) {
	for _, v := range c.Varieties {
		if v.ID == id {
			return v, true
		}
	}
	return model.AppleVariety{}, false
}
