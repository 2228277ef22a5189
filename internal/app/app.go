package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/appledex/internal/config"
	"github.com/hitoshi/appledex/internal/database"
	"github.com/hitoshi/appledex/internal/handler"
	"github.com/hitoshi/appledex/internal/logger"
	"github.com/hitoshi/appledex/internal/manifest"
	"github.com/hitoshi/appledex/internal/metrics"
	"github.com/hitoshi/appledex/internal/middleware"
	"github.com/hitoshi/appledex/internal/repository"
	"github.com/hitoshi/appledex/internal/security"
	"github.com/hitoshi/appledex/internal/session"
	"github.com/hitoshi/appledex/internal/tracing"
	"github.com/hitoshi/appledex/internal/view"
	"github.com/hitoshi/appledex/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.SlogLevel())
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// sessionStore は設定されたセッションストアと、その疎通確認・解放処理をまとめる。
type sessionStore struct {
	repo  repository.SessionRepository
	ping  func(ctx context.Context) error
	close func() error
}

// openSessionStore はSESSION_STOREに応じてセッションストアを開く。
func openSessionStore(ctx context.Context, cfg *config.Config) (*sessionStore, error) {
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return &sessionStore{
			repo:  repository.NewPostgresSessionRepo(db),
			ping:  db.PingContext,
			close: db.Close,
		}, nil

	case config.SessionStoreRedis:
		rdb, err := repository.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return &sessionStore{
			repo:  repository.NewRedisSessionRepo(rdb),
			ping:  redisPing(rdb),
			close: rdb.Close,
		}, nil

	default:
		return &sessionStore{
			repo:  repository.NewMemorySessionRepo(),
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil
	}
}

func redisPing(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// application はserveコマンドで動作する依存一式を保持する。
type application struct {
	handler   http.Handler
	limiter   *middleware.RateLimiter
	collector *metrics.Collector
}

// newApplication は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
func newApplication(cfg *config.Config, store *sessionStore, log *slog.Logger) (*application, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. BaaSクライアント
	ssrfGuard := security.NewSSRFGuard()
	httpClient := &http.Client{Timeout: cfg.ManifestTimeout}
	if cfg.ManifestSSRFGuard {
		httpClient = ssrfGuard.NewSafeClient(cfg.ManifestTimeout)
	}
	client, err := manifest.New(manifest.Config{
		BaseURL:    cfg.ManifestAPIURL,
		AppID:      cfg.ManifestAppID,
		HTTPClient: httpClient,
		Logger:     log,
		Recorder:   collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest client: %w", err)
	}

	// 3. セッションと画面
	sessions := session.NewController(client, store.repo, session.Config{MaxAge: cfg.SessionTTL()})
	// ガード無効時（ローカルのBaaSなど）はlocalhostのサムネイルもそのまま表示する
	var images view.ImageURLFilter = ssrfGuard
	if !cfg.ManifestSSRFGuard {
		images = nil
	}
	renderer, err := view.New(images, security.NewTextFormatter())
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 4. ルーター
	limiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    limiter,
		StatusRecorder: collector,
		HealthCheck:    store.ping,
		MetricsHandler: metrics.Handler(registry),

		Sessions: sessions,
		Renderer: renderer,
		AuthConfig: handler.AuthHandlerConfig{
			DemoEmail:    cfg.DemoEmail,
			DemoPassword: cfg.DemoPassword,
			Cookie: middleware.CookieConfig{
				Secure: cfg.CookieSecure,
				Domain: cfg.CookieDomain,
				MaxAge: cfg.SessionMaxAge,
			},
		},
		LoginRecorder: collector,
		AdminRedirect: cfg.AdminURL(),

		Varieties: repository.NewManifestVarietyRepo(client),
	}

	return &application{
		handler:   handler.NewRouter(deps),
		limiter:   limiter,
		collector: collector,
	}, nil
}

// setupTracing はトレーシングの初期化処理。テストで差し替える。
var setupTracing = tracing.Setup

// flushTracing はバッファ済みスパンを送信してトレーシングを停止する。
func flushTracing(shutdown tracing.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
}

// runServe はAPIサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. トレーシング（起動失敗時もバッファ済みスパンを送信する）
	shutdownTracing, err := setupTracing(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer flushTracing(shutdownTracing)

	// 2. セッションストア
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	// 3. 依存関係のワイヤリング
	app, err := newApplication(cfg, store, slog.Default())
	if err != nil {
		return err
	}
	defer app.limiter.Stop()

	// 4. メモリストアはプロセス内で期限切れセッションを掃除する
	var scheduler *cleanup.Scheduler
	if cfg.SessionStore == config.SessionStoreMemory {
		job := cleanup.NewCleanupJob(store.repo, slog.Default(), app.collector)
		scheduler, err = cleanup.NewScheduler(job, cfg.SessionCleanupSchedule)
		if err != nil {
			return fmt.Errorf("failed to create cleanup scheduler: %w", err)
		}
		scheduler.Start()
	}

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ManifestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 共有セッションストアの期限切れセッションを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore == config.SessionStoreMemory {
		return fmt.Errorf("worker requires a shared session store (SESSION_STORE=postgres or redis)")
	}

	store, err := openSessionStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	job := cleanup.NewCleanupJob(store.repo, slog.Default(), nil)
	scheduler, err := cleanup.NewScheduler(job, cfg.SessionCleanupSchedule)
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("worker starting",
		slog.String("schedule", cfg.SessionCleanupSchedule),
	)
	scheduler.Start()

	<-stop
	slog.Info("shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
