package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/appledex/internal/dashboard"
	"github.com/hitoshi/appledex/internal/manifest"
	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/repository"
)

// varietiesResponse は品種一覧のレスポンス。
// 変更操作のレスポンスも、BaaSから再取得した一覧を返す。
type varietiesResponse struct {
	Data  []model.AppleVariety `json:"data"`
	Error string               `json:"error,omitempty"` // 変更後の再取得に失敗した場合のメッセージ
}

// VarietyAPIHandler は品種コレクションのJSON APIハンドラー。
type VarietyAPIHandler struct {
	sessions  SessionLoader
	varieties repository.VarietyRepository
}

// NewVarietyAPIHandler はVarietyAPIHandlerを生成する。
func NewVarietyAPIHandler(sessions SessionLoader, varieties repository.VarietyRepository) *VarietyAPIHandler {
	return &VarietyAPIHandler{
		sessions:  sessions,
		varieties: varieties,
	}
}

// List は現在のユーザーの品種一覧を返す。
// GET /api/varieties
func (h *VarietyAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	dash, ok := h.controller(w, r)
	if !ok {
		return
	}

	if err := dash.Fetch(r.Context()); err != nil {
		handleBackendError(w, err, model.MsgFetchFailed, "")
		return
	}
	writeJSON(w, http.StatusOK, toVarietiesResponse(dash))
}

// Create は品種を作成する。
// POST /api/varieties
func (h *VarietyAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	dash, ok := h.controller(w, r)
	if !ok {
		return
	}

	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	dash.OpenCreate()
	dash.Form = form

	if err := dash.Submit(r.Context()); err != nil {
		handleBackendError(w, err, model.MsgSaveFailed, "")
		return
	}
	writeJSON(w, http.StatusCreated, toVarietiesResponse(dash))
}

// Update は品種を更新する。
// PUT /api/varieties/{id}
func (h *VarietyAPIHandler) Update(w http.ResponseWriter, r *http.Request) {
	dash, ok := h.controller(w, r)
	if !ok {
		return
	}

	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	dash.Edit(model.AppleVariety{ID: id})
	dash.Form = form

	if err := dash.Submit(r.Context()); err != nil {
		handleBackendError(w, err, model.MsgSaveFailed, id)
		return
	}
	writeJSON(w, http.StatusOK, toVarietiesResponse(dash))
}

// Delete は品種を削除する。APIの呼び出し自体を削除の確認とみなす。
// DELETE /api/varieties/{id}
func (h *VarietyAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	dash, ok := h.controller(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := dash.Delete(r.Context(), id, true); err != nil {
		handleBackendError(w, err, model.MsgDeleteFailed, id)
		return
	}
	writeJSON(w, http.StatusOK, toVarietiesResponse(dash))
}

// controller は認証済みユーザーのダッシュボードコントローラーを返す。
// 未ログインの場合は401を書き込み、falseを返す。
func (h *VarietyAPIHandler) controller(w http.ResponseWriter, r *http.Request) (*dashboard.Controller, bool) {
	state := h.sessions.Load(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if !state.Authenticated() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	middleware.AnnotateUserID(r.Context(), state.User.ID)
	return dashboard.New(h.varieties, state.Token), true
}

// decodeForm はJSONボディをフォームとして読み取る。
func (h *VarietyAPIHandler) decodeForm(w http.ResponseWriter, r *http.Request) (model.VarietyForm, bool) {
	var form model.VarietyForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return form, false
	}
	return form, true
}

func toVarietiesResponse(dash *dashboard.Controller) varietiesResponse {
	data := dash.Varieties
	if data == nil {
		data = []model.AppleVariety{}
	}
	return varietiesResponse{Data: data, Error: dash.Error}
}

// handleBackendError はコントローラーから返されたエラーを適切なHTTPステータスコードに変換する。
// BaaSのエラーメッセージはログのみに記録し、クライアントには画面と同じ文言を返す。
func handleBackendError(w http.ResponseWriter, err error, message, id string) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case manifest.IsUnauthorized(err):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case manifest.IsNotFound(err):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewVarietyNotFoundError(id))
	default:
		slog.Error("backend request failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendFailedError(message))
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeLoginFailed:
		return http.StatusUnauthorized
	case model.ErrCodeVarietyNotFound:
		return http.StatusNotFound
	case model.ErrCodeBackendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
