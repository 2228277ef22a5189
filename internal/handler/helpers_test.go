package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/appledex/internal/manifest"
	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/model"
	"github.com/hitoshi/appledex/internal/security"
	"github.com/hitoshi/appledex/internal/view"
	"golang.org/x/net/html"
)

// --- モック定義 ---

const (
	testSessionID = "valid-session"
	testToken     = "bearer-token"
)

type mockSessionController struct {
	loadFn   func(ctx context.Context, sessionID string) *model.SessionState
	loginFn  func(ctx context.Context, email, password string) (*model.Session, *model.SessionState, error)
	logoutFn func(ctx context.Context, sessionID string) *model.SessionState
}

func (m *mockSessionController) Load(ctx context.Context, sessionID string) *model.SessionState {
	if m.loadFn != nil {
		return m.loadFn(ctx, sessionID)
	}
	return model.LandingState()
}

func (m *mockSessionController) Login(ctx context.Context, email, password string) (*model.Session, *model.SessionState, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, fmt.Errorf("login not configured")
}

func (m *mockSessionController) Logout(ctx context.Context, sessionID string) *model.SessionState {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return model.LandingState()
}

// authenticatedSessions はtestSessionIDのみを認証済みとして扱うモックを返す。
func authenticatedSessions() *mockSessionController {
	return &mockSessionController{
		loadFn: func(ctx context.Context, sessionID string) *model.SessionState {
			if sessionID != testSessionID {
				return model.LandingState()
			}
			return &model.SessionState{
				User:   &model.User{ID: "user-1", Email: "user@manifest.build", Name: "Demo User"},
				Screen: model.ScreenDashboard,
				Token:  testToken,
			}
		},
	}
}

// fakeVarietyRepo はBaaSのコレクションを模したインメモリ実装。新しい順に保持する。
type fakeVarietyRepo struct {
	mu        sync.Mutex
	varieties []model.AppleVariety
	nextID    int
	calls     []string
	tokens    []string

	listErr   error
	createErr error
	updateErr error
	deleteErr error
}

func (f *fakeVarietyRepo) record(call, token string) {
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, token)
}

func (f *fakeVarietyRepo) List(ctx context.Context, token string) ([]model.AppleVariety, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list", token)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.AppleVariety{}, f.varieties...), nil
}

func (f *fakeVarietyRepo) Create(ctx context.Context, token string, form model.VarietyForm) (*model.AppleVariety, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create", token)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	v := model.AppleVariety{
		ID:           fmt.Sprintf("new-%d", f.nextID),
		Title:        form.Title,
		Description:  form.Description,
		Origin:       form.Origin,
		TastingNotes: form.TastingNotes,
		HarvestDate:  form.HarvestDate,
	}
	f.varieties = append([]model.AppleVariety{v}, f.varieties...)
	return &v, nil
}

func (f *fakeVarietyRepo) Update(ctx context.Context, token, id string, form model.VarietyForm) (*model.AppleVariety, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update:"+id, token)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.varieties {
		if f.varieties[i].ID == id {
			f.varieties[i].Title = form.Title
			f.varieties[i].Description = form.Description
			f.varieties[i].Origin = form.Origin
			f.varieties[i].TastingNotes = form.TastingNotes
			f.varieties[i].HarvestDate = form.HarvestDate
			v := f.varieties[i]
			return &v, nil
		}
	}
	return nil, fmt.Errorf("failed to update variety %s: %w", id,
		&manifest.Error{Op: "update", StatusCode: http.StatusNotFound, Message: "Not Found"})
}

func (f *fakeVarietyRepo) Delete(ctx context.Context, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete:"+id, token)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.varieties {
		if f.varieties[i].ID == id {
			f.varieties = append(f.varieties[:i], f.varieties[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("failed to delete variety %s: %w", id,
		&manifest.Error{Op: "delete", StatusCode: http.StatusNotFound, Message: "Not Found"})
}

func (f *fakeVarietyRepo) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeVarietyRepo) hasCall(prefix string) bool {
	for _, c := range f.callList() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// --- ヘルパー ---

func newTestRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.New(nil, security.NewTextFormatter())
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	return r
}

// withSession はリクエストコンテキストにセッションIDを注入する。
func withSession(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(middleware.ContextWithSessionID(req.Context(), sessionID))
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func parseHTML(t *testing.T, w *httptest.ResponseRecorder) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(w.Body.String()))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	return doc
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// cardIDs はダッシュボードのカードのIDを表示順に返す。
func cardIDs(doc *html.Node) []string {
	var ids []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "data-id" {
					ids = append(ids, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return ids
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
