package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/history"
	"github.com/BaSui01/intentflow/internal/telemetry"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
	"github.com/BaSui01/intentflow/types"
)

// =============================================================================
// 🔎 Analyzer
// =============================================================================

// Request 一次分析的输入；Source/Path/Method 为空时使用默认值
type Request struct {
	Text      string `json:"request"`
	Source    string `json:"source,omitempty"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method,omitempty"`
	RequestID string `json:"-"`
}

// Defaults 默认契约与操作，以及调用方可指定的契约来源
type Defaults struct {
	Source string
	Path   string
	Method string
	// AllowClientSource 为 true 时接受任意来源
	AllowClientSource bool
	// AllowedSources 除默认契约外允许的来源
	AllowedSources []string
}

// DefaultsFrom 从 schema 配置读取默认值
func DefaultsFrom(cfg config.SchemaConfig) Defaults {
	return Defaults{
		Source:            cfg.Source,
		Path:              cfg.Path,
		Method:            cfg.Method,
		AllowClientSource: cfg.AllowClientSource,
		AllowedSources:    append([]string(nil), cfg.AllowedSources...),
	}
}

// CheckSource 校验调用方传入的契约来源。空值和默认契约总是允许，
// 其余来源须在 AllowedSources 中，或开启 AllowClientSource。
func (d Defaults) CheckSource(source string) error {
	source = strings.TrimSpace(source)
	if source == "" || source == strings.TrimSpace(d.Source) || d.AllowClientSource {
		return nil
	}
	for _, allowed := range d.AllowedSources {
		if source == strings.TrimSpace(allowed) {
			return nil
		}
	}
	return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("source %q is not allowed", source))
}

// MetricsRecorder 由 internal/metrics.Collector 实现
type MetricsRecorder interface {
	RecordAnalysis(operation, status string, duration time.Duration, matches map[string]string, missing int)
	RecordSchemaLoad(status string)
}

// Analyzer 串联 SchemaResolver → ParameterExtractor → RequestSynthesizer
type Analyzer struct {
	loader      schema.DocumentLoader
	extractor   *extract.Extractor
	defaults    Defaults
	history     history.Store
	metrics     MetricsRecorder
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option 配置 Analyzer
type Option func(*Analyzer)

// WithHistory 记录每次分析
func WithHistory(s history.Store) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.history = s
		}
	}
}

// WithMetrics 上报 Prometheus 指标
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithInstruments 上报 OpenTelemetry 指标
func WithInstruments(i *telemetry.Instruments) Option {
	return func(a *Analyzer) { a.instruments = i }
}

// WithExtractor 替换启发式规则集
func WithExtractor(e *extract.Extractor) Option {
	return func(a *Analyzer) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithTracer 替换 tracer，默认取全局 provider
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.tracer = t
		}
	}
}

// New 创建 Analyzer
func New(loader schema.DocumentLoader, defaults Defaults, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		loader:    loader,
		extractor: extract.New(),
		defaults:  defaults,
		history:   history.NopStore{},
		tracer:    telemetry.Tracer(),
		logger:    logger.With(zap.String("component", "analyzer")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Defaults 返回默认契约与操作
func (a *Analyzer) Defaults() Defaults { return a.defaults }

// Normalize 填充默认值并小写 method
func (a *Analyzer) Normalize(req Request) Request {
	if strings.TrimSpace(req.Source) == "" {
		req.Source = a.defaults.Source
	}
	if strings.TrimSpace(req.Path) == "" {
		req.Path = a.defaults.Path
	}
	if strings.TrimSpace(req.Method) == "" {
		req.Method = a.defaults.Method
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	return req
}

// Analyze 对文本执行完整分析。缺少必填字段不是错误，Ready=false 即可
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*synth.Result, error) {
	req = a.Normalize(req)
	op := schema.NewOperationRef(req.Path, req.Method)
	if req.RequestID == "" {
		req.RequestID, _ = types.RequestID(ctx)
	}

	ctx, span := a.tracer.Start(ctx, "intentflow.analyze", trace.WithAttributes(
		attribute.String("intentflow.source", req.Source),
		attribute.String("intentflow.operation", op.String()),
		attribute.Int("intentflow.text_length", len(req.Text)),
	))
	defer span.End()

	start := time.Now()
	res, err := a.run(ctx, req.Text, req.Source, op)
	elapsed := time.Since(start)

	status := history.StatusOf(res, err)
	a.observe(ctx, op, status, elapsed, res)
	a.record(ctx, req, op, res, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("analysis failed",
			zap.String("request_id", req.RequestID),
			zap.String("operation", op.String()),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("intentflow.ready", res.Ready),
		attribute.Int("intentflow.found", res.FoundParameters.Len()),
		attribute.StringSlice("intentflow.missing_required", res.MissingRequired),
	)
	a.logger.Debug("analysis complete",
		zap.String("request_id", req.RequestID),
		zap.String("operation", op.String()),
		zap.Bool("ready", res.Ready),
		zap.Strings("missing_required", res.MissingRequired),
		zap.Duration("duration", elapsed),
	)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, text, source string, op schema.OperationRef) (*synth.Result, error) {
	rs, err := a.RequestSchema(ctx, source, op.Path, op.Method)
	if err != nil {
		return nil, err
	}

	_, span := a.tracer.Start(ctx, "intentflow.extract")
	found := a.extractor.Extract(text, rs.Properties)
	span.SetAttributes(attribute.Int("intentflow.matches", found.Len()))
	span.End()

	return synth.Synthesize(rs, found), nil
}

// RequestSchema 加载文档并取出操作的请求体契约
func (a *Analyzer) RequestSchema(ctx context.Context, source, path, method string) (*schema.RequestSchema, error) {
	doc, err := a.load(ctx, source)
	if err != nil {
		return nil, err
	}
	rs, err := doc.RequestSchema(path, method)
	if err != nil {
		a.schemaLoad(LoadNotFound)
		return nil, err
	}
	return rs, nil
}

// Operations 列出文档中带 JSON 请求体的操作
func (a *Analyzer) Operations(ctx context.Context, source string) ([]schema.Operation, error) {
	if strings.TrimSpace(source) == "" {
		source = a.defaults.Source
	}
	doc, err := a.load(ctx, source)
	if err != nil {
		return nil, err
	}
	return doc.Operations(), nil
}

// 文档加载结果标签
const (
	LoadOK              = "ok"
	LoadError           = "load_error"
	LoadResolutionError = "resolution_error"
	LoadNotFound        = "not_found"
)

func (a *Analyzer) load(ctx context.Context, source string) (*schema.Document, error) {
	ctx, span := a.tracer.Start(ctx, "intentflow.schema.load", trace.WithAttributes(
		attribute.String("intentflow.source", source),
	))
	defer span.End()

	doc, err := a.loader.Load(ctx, source)
	if err != nil {
		var resErr *schema.SchemaResolutionError
		if errors.As(err, &resErr) {
			a.schemaLoad(LoadResolutionError)
		} else {
			a.schemaLoad(LoadError)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema load failed")
		return nil, err
	}
	a.schemaLoad(LoadOK)
	return doc, nil
}

func (a *Analyzer) schemaLoad(status string) {
	if a.metrics != nil {
		a.metrics.RecordSchemaLoad(status)
	}
}

func (a *Analyzer) observe(ctx context.Context, op schema.OperationRef, status history.Status, d time.Duration, res *synth.Result) {
	missing := 0
	var matches map[string]string
	if res != nil {
		missing = len(res.MissingRequired)
		matches = res.FoundParameters.Matches
	}
	if a.metrics != nil {
		a.metrics.RecordAnalysis(op.String(), string(status), d, matches, missing)
	}
	a.instruments.RecordAnalysis(ctx, op.String(), string(status), d, missing)
}

// record 历史写入失败只记日志，不影响分析结果
func (a *Analyzer) record(ctx context.Context, req Request, op schema.OperationRef, res *synth.Result, err error, d time.Duration) {
	rec, recErr := history.NewRecord(req.RequestID, req.Source, op, req.Text, res, err, d)
	if recErr == nil {
		recErr = a.history.Save(ctx, rec)
	}
	if recErr != nil {
		a.logger.Warn("failed to record analysis", zap.String("request_id", req.RequestID), zap.Error(recErr))
	}
}
