package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/internal/retry"
	"github.com/BaSui01/intentflow/internal/telemetry"
	"github.com/BaSui01/intentflow/internal/tlsutil"
	"github.com/BaSui01/intentflow/types"
)

// maxResponseBytes 下游响应体上限
const maxResponseBytes = 8 << 20

// =============================================================================
// 📤 请求与结果
// =============================================================================

// Request 一次下游调用
type Request struct {
	Path    string
	Method  string
	Payload any
}

// Result 下游调用结果。失败时只有 Error/Code 有意义，不会以 error 形式抛出
type Result struct {
	StatusCode int             `json:"status_code,omitempty"`
	Response   any             `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       types.ErrorCode `json:"code,omitempty"`
	Attempts   int             `json:"attempts"`
	URL        string          `json:"url"`
}

// OK 调用成功
func (r *Result) OK() bool { return r.Error == "" }

// Value 成功时为解码后的响应，失败时为 {"error": message}
func (r *Result) Value() any {
	if !r.OK() {
		return map[string]any{"error": r.Error}
	}
	return r.Response
}

// MetricsRecorder 由 internal/metrics.Collector 实现
type MetricsRecorder interface {
	RecordDownstreamRequest(method string, status int, duration time.Duration)
}

// =============================================================================
// 🚀 Executor
// =============================================================================

// Executor 把合成的载荷发往下游服务，带限流与指数退避重试
type Executor struct {
	baseURL   *url.URL
	client    *http.Client
	retryer   *retry.Retryer
	limiter   *rate.Limiter
	authToken string
	metrics   MetricsRecorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option 配置 Executor
type Option func(*Executor)

// WithHTTPClient 替换 HTTP 客户端（测试用 httptest 客户端）
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithMetrics 上报下游请求指标
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithRetryPolicy 覆盖由配置生成的重试策略
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Executor) {
		if p.ShouldRetry == nil {
			p.ShouldRetry = isRetryable
		}
		e.retryer = retry.New(p, e.logger)
	}
}

// New 由下游配置创建 Executor
func New(cfg config.DownstreamConfig, logger *zap.Logger, opts ...Option) (*Executor, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid downstream base_url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "downstream"))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultDownstreamConfig().Timeout
	}

	e := &Executor{
		baseURL:   base,
		client:    tlsutil.SecureHTTPClient(timeout),
		authToken: cfg.AuthToken,
		tracer:    telemetry.Tracer(),
		logger:    logger,
	}

	policy := retry.FromDownstreamConfig(cfg)
	policy.ShouldRetry = isRetryable
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("downstream request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	e.retryer = retry.New(policy, logger)

	if cfg.RateLimitRPS > 0 {
		burst := max(cfg.RateLimitBurst, 1)
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BaseURL 下游基础地址
func (e *Executor) BaseURL() string { return e.baseURL.String() }

// Endpoint 返回 path 对应的完整地址，保留 base_url 自身的路径前缀
func (e *Executor) Endpoint(path string) string {
	u := *e.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	return u.String()
}

// Execute 发送请求。网络失败、超时与非 2xx 都转为带 Error 的 Result
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	res := &Result{URL: e.Endpoint(req.Path)}

	ctx, span := e.tracer.Start(ctx, "intentflow.downstream", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", res.URL),
		))
	defer span.End()

	var body []byte
	if req.Payload != nil && method != http.MethodGet && method != http.MethodHead {
		var err error
		if body, err = json.Marshal(req.Payload); err != nil {
			return e.fail(span, res, types.NewError(types.ErrInvalidRequest, "payload is not JSON-encodable").WithCause(err))
		}
	}

	value, err := retry.Do(ctx, e.retryer, func(ctx context.Context) (any, error) {
		res.Attempts++
		return e.attempt(ctx, method, res, body)
	})
	if err != nil {
		return e.fail(span, res, err)
	}

	res.Response = value
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	e.logger.Debug("downstream request succeeded",
		zap.String("method", method),
		zap.String("url", res.URL),
		zap.Int("status", res.StatusCode),
		zap.Int("attempts", res.Attempts),
	)
	return res
}

func (e *Executor) attempt(ctx context.Context, method string, res *Result, body []byte) (any, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimited, "downstream rate limit wait aborted").WithCause(err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, res.URL, reader)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid downstream request").WithCause(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if e.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.authToken)
	}
	if id, ok := types.RequestID(ctx); ok {
		httpReq.Header.Set("X-Request-ID", id)
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.observe(method, 0, time.Since(start))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	e.observe(method, resp.StatusCode, time.Since(start))
	res.StatusCode = resp.StatusCode
	if err != nil {
		return nil, retry.WrapRetryable(types.NewError(types.ErrUpstreamError, "failed to read downstream response").WithCause(err))
	}
	if len(data) > maxResponseBytes {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("downstream response exceeds %d bytes", maxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return decodeBody(data), nil
}

func (e *Executor) observe(method string, status int, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordDownstreamRequest(method, status, d)
	}
}

func (e *Executor) fail(span trace.Span, res *Result, err error) *Result {
	res.Error = err.Error()
	res.Code = codeOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, res.Error)
	e.logger.Warn("downstream request failed",
		zap.String("url", res.URL),
		zap.Int("attempts", res.Attempts),
		zap.String("code", string(res.Code)),
		zap.Error(err),
	)
	return res
}

// decodeBody 非 JSON 响应按原文返回
func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

// =============================================================================
// ❗ 错误分类
// =============================================================================

// StatusError 下游返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("downstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("downstream returned %d: %s", e.StatusCode, body)
}

// Retryable 429 与 5xx 可重试
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrUpstreamError, "downstream request cancelled").WithCause(err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrUpstreamTimeout, "downstream request timed out").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrUpstreamError, "downstream request failed").WithCause(err).WithRetryable(true)
}

func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return retry.IsRetryable(err)
}

func codeOf(err error) types.ErrorCode {
	var se *StatusError
	if errors.As(err, &se) {
		return types.ErrUpstreamError
	}
	if code := types.GetErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrUpstreamTimeout
	}
	return types.ErrUpstreamError
}
