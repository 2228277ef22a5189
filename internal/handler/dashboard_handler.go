package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/appledex/internal/dashboard"
	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/repository"
	"github.com/hitoshi/appledex/internal/view"
)

// SessionLoader はセッション状態を解決する。
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) *model.SessionState
}

// DashboardHandler はルート画面と品種フォームのHTTPハンドラー。
// 変更操作の後はリダイレクトせず、再取得した一覧でダッシュボードをそのまま描画する。
type DashboardHandler struct {
	sessions  SessionLoader
	varieties repository.VarietyRepository
	renderer  *view.Renderer
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sessions SessionLoader, varieties repository.VarietyRepository, renderer *view.Renderer) *DashboardHandler {
	return &DashboardHandler{
		sessions:  sessions,
		varieties: varieties,
		renderer:  renderer,
	}
}

// Root はセッション状態に応じてランディングまたはダッシュボードを表示する。
// GET /
// クエリ form=new で作成フォーム、edit={id} で編集フォームを開いた状態にする。
func (h *DashboardHandler) Root(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := h.sessions.Load(ctx, middleware.SessionIDFromContext(ctx))
	page := h.rootPage(r, state)

	if !state.Authenticated() {
		h.writeRoot(w, http.StatusOK, page)
		return
	}
	middleware.AnnotateUserID(ctx, state.User.ID)

	dash := dashboard.New(h.varieties, state.Token)
	dash.Fetch(ctx)

	query := r.URL.Query()
	if query.Get("form") == "new" {
		dash.OpenCreate()
	} else if id := query.Get("edit"); id != "" {
		if v, ok := dash.Find(id); ok {
			dash.Edit(v)
		}
	}

	page.Dashboard = dash
	h.writeRoot(w, http.StatusOK, page)
}

// Create は作成フォームの送信を処理する。
// POST /varieties
func (h *DashboardHandler) Create(w http.ResponseWriter, r *http.Request) {
	state, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	dash := dashboard.New(h.varieties, state.Token)
	dash.OpenCreate()
	dash.Form = h.readForm(r)

	err := dash.Submit(ctx)
	if err != nil {
		// 失敗時もカード一覧は表示する
		dash.Fetch(ctx)
	}
	h.writeDashboard(w, r, state, dash, submitStatus(err))
}

// Update は編集フォームの送信を処理する。
// POST /varieties/{id}
func (h *DashboardHandler) Update(w http.ResponseWriter, r *http.Request) {
	state, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	dash := dashboard.New(h.varieties, state.Token)
	dash.Fetch(ctx)
	target, found := dash.Find(id)
	if !found {
		target = model.AppleVariety{ID: id}
	}
	dash.Edit(target)
	dash.Form = h.readForm(r)

	err := dash.Submit(ctx)
	h.writeDashboard(w, r, state, dash, submitStatus(err))
}

// ConfirmDelete は削除確認画面を表示する。
// GET /varieties/{id}/delete
// 一覧に存在しないIDの場合はルートへ戻す。
func (h *DashboardHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	state, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	dash := dashboard.New(h.varieties, state.Token)
	dash.Fetch(ctx)
	v, found := dash.Find(id)
	if !found {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	writeHTML(w, http.StatusOK, func(out io.Writer) error {
		return h.renderer.ConfirmDelete(out, view.ConfirmDeletePage{
			CSRFToken: middleware.CSRFTokenFromContext(ctx),
			Variety:   v,
		})
	})
}

// Delete は確認済みの削除を実行する。
// POST /varieties/{id}/delete
// confirm=yes 以外はBaaSを呼ばずにルートへ戻す。
func (h *DashboardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	state, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	confirmed := r.PostFormValue("confirm") == "yes"

	dash := dashboard.New(h.varieties, state.Token)
	err := dash.Delete(ctx, id, confirmed)
	if errors.Is(err, dashboard.ErrNotConfirmed) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
		dash.Fetch(ctx)
	}
	h.writeDashboard(w, r, state, dash, status)
}

// requireSession は認証済みのセッション状態を返す。
// 未ログインの場合はルートへ303リダイレクトし、falseを返す。
func (h *DashboardHandler) requireSession(w http.ResponseWriter, r *http.Request) (*model.SessionState, bool) {
	state := h.sessions.Load(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if !state.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, false
	}
	middleware.AnnotateUserID(r.Context(), state.User.ID)
	return state, true
}

// readForm はフォーム値を読み取る。値は加工せずそのままBaaSへ送る。
func (h *DashboardHandler) readForm(r *http.Request) model.VarietyForm {
	return model.VarietyForm{
		Title:        r.PostFormValue("title"),
		Description:  r.PostFormValue("description"),
		Origin:       r.PostFormValue("origin"),
		TastingNotes: r.PostFormValue("tastingNotes"),
		HarvestDate:  r.PostFormValue("harvestDate"),
	}
}

func (h *DashboardHandler) rootPage(r *http.Request, state *model.SessionState) view.RootPage {
	return view.RootPage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		AdminURL:  adminPath,
		Session:   state,
	}
}

func (h *DashboardHandler) writeDashboard(w http.ResponseWriter, r *http.Request, state *model.SessionState, dash *dashboard.Controller, status int) {
	page := h.rootPage(r, state)
	page.Dashboard = dash
	h.writeRoot(w, status, page)
}

func (h *DashboardHandler) writeRoot(w http.ResponseWriter, status int, page view.RootPage) {
	writeHTML(w, status, func(out io.Writer) error {
		return h.renderer.Root(out, page)
	})
}

// submitStatus はフォーム送信結果のステータスコードを返す。
// 入力エラーは422、BaaSの失敗は502。
func submitStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidationFailed {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// writeHTML は描画結果をバッファしてから書き込む。描画に失敗した場合は500を返す。
func writeHTML(w http.ResponseWriter, status int, render func(out io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error("failed to render page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
