// Package manifest はManifest BaaSのREST APIクライアントを提供する。
// 認証（login / me）とコレクションのCRUDのみを扱い、
// データ検証・認可・永続化はすべてBaaS側の責務とする。
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// appIDHeader はアプリケーション識別子を送るヘッダー名。
	appIDHeader = "X-App-Id"
	// maxResponseSize はレスポンスボディの最大サイズ。
	maxResponseSize = 5 << 20
	// tracerName はスパンを生成するトレーサー名。
	tracerName = "github.com/hitoshi/appledex/internal/manifest"
)

// CallRecorder はBaaS呼び出しの結果を記録するインターフェース。
// metrics.Collectorが実装する。
type CallRecorder interface {
	RecordBackendCall(operation string, success bool, duration time.Duration)
}

// Config はクライアントの設定。
type Config struct {
	BaseURL    string
	AppID      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Recorder   CallRecorder
}

// Client はManifest REST APIのクライアント。
// 構築後は不変で、複数のgoroutineから同時に利用できる。
// ユーザーごとのベアラートークンは各メソッドの引数で受け取る。
type Client struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   CallRecorder
	tracer     trace.Tracer
}

// New はClientを生成する。
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		httpClient: httpClient,
		logger:     logger,
		recorder:   cfg.Recorder,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// AppID はクライアントのアプリケーション識別子を返す。
func (c *Client) AppID() string {
	return c.appID
}

// request は1回のAPI呼び出しの内容。
type request struct {
	op     string
	method string
	path   string
	token  string
	query  url.Values
	body   any
}

// do はAPIを呼び出し、成功時のレスポンスボディを返す。
// 2xx以外のステータスは*Errorとして返す。リトライは行わない。
func (c *Client) do(ctx context.Context, req request) (body []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "manifest."+req.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("manifest.operation", req.op),
			attribute.String("http.method", req.method),
			attribute.String("manifest.app_id", c.appID),
		),
	)
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if c.recorder != nil {
			c.recorder.RecordBackendCall(req.op, err == nil, duration)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		payload, marshalErr := json.Marshal(req.body)
		if marshalErr != nil {
			return nil, &Error{Op: req.op, Message: "failed to encode request body", Err: marshalErr}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, reader)
	if err != nil {
		return nil, &Error{Op: req.op, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(appIDHeader, c.appID)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("manifest request failed",
			slog.String("operation", req.op),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Op: req.op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Op: req.op, StatusCode: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
		}
		c.logger.Warn("manifest returned error status",
			slog.String("operation", req.op),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	return body, nil
}

// errorMessage はエラーレスポンスからメッセージを取り出す。
// messageは文字列または文字列配列のどちらでも受け付ける。
func errorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}

	msg := gjson.GetBytes(body, "message")
	switch {
	case msg.IsArray():
		var parts []string
		for _, m := range msg.Array() {
			parts = append(parts, m.String())
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	case msg.Exists() && msg.String() != "":
		return msg.String()
	}

	if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
		return e.String()
	}
	return fallback
}
