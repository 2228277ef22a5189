package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/repository"
	"github.com/hitoshi/appledex/internal/tracing"
	"github.com/hitoshi/appledex/internal/view"
)

// adminPath は画面からリンクする管理画面のパス。BaaSの管理画面へリダイレクトする。
const adminPath = "/admin"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータスを記録しない

	// ヘルスチェック・メトリクス
	HealthCheck    func(ctx context.Context) error // nilの場合は常に正常
	MetricsHandler http.Handler                    // nilの場合は /metrics を公開しない

	// 画面・認証
	Sessions      SessionController
	Renderer      *view.Renderer
	AuthConfig    AuthHandlerConfig
	LoginRecorder LoginRecorder
	AdminRedirect string // BaaSの管理画面URL

	// 品種
	Varieties repository.VarietyRepository
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → Metrics → Tracing
//	→ Session → RateLimit(General) → CSRF
//
// /health と /metrics はセッション・レート制限・CSRFの外に配置する。
// /api/* にはCORSを追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(tracing.NewMiddleware())

	authHandler := NewAuthHandler(deps.Sessions, deps.Renderer, deps.LoginRecorder, deps.AuthConfig)
	dashHandler := NewDashboardHandler(deps.Sessions, deps.Varieties, deps.Renderer)
	apiHandler := NewVarietyAPIHandler(deps.Sessions, deps.Varieties)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get(adminPath, NewAdminRedirectHandler(deps.AdminRedirect))

	// --- 画面とAPI ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/", dashHandler.Root)

		// デモログイン（IP単位のログイン用レート制限を追加）
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		r.Route("/varieties", func(r chi.Router) {
			r.Post("/", dashHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/", dashHandler.Update)
				r.Get("/delete", dashHandler.ConfirmDelete)
				r.Post("/delete", dashHandler.Delete)
			})
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Get("/session", authHandler.Session)
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

			r.Route("/varieties", func(r chi.Router) {
				r.Get("/", apiHandler.List)
				r.Post("/", apiHandler.Create)
				r.Put("/{id}", apiHandler.Update)
				r.Delete("/{id}", apiHandler.Delete)
			})
		})
	})

	return r
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// GET /health
func NewHealthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewAdminRedirectHandler はBaaSの管理画面へリダイレクトするハンドラーを返す。
// GET /admin
func NewAdminRedirectHandler(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if target == "" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}
