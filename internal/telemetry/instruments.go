package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments OTel 分析指标，与 Prometheus 采集器并行导出到 OTLP
type Instruments struct {
	analyses metric.Int64Counter
	missing  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments 在 mp 上创建分析指标；mp 为 nil 时使用全局 MeterProvider
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	i := &Instruments{}
	var err error

	i.analyses, err = meter.Int64Counter("intentflow.analysis.total",
		metric.WithDescription("Total number of analyses"),
		metric.WithUnit("{analysis}"))
	if err != nil {
		return nil, err
	}

	i.missing, err = meter.Int64Counter("intentflow.analysis.missing_required",
		metric.WithDescription("Required properties left unresolved"),
		metric.WithUnit("{property}"))
	if err != nil {
		return nil, err
	}

	i.duration, err = meter.Float64Histogram("intentflow.analysis.duration",
		metric.WithDescription("Analysis duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	if err != nil {
		return nil, err
	}

	return i, nil
}

// RecordAnalysis 记录一次分析。nil 接收者为 no-op
func (i *Instruments) RecordAnalysis(ctx context.Context, operation, status string, d time.Duration, missing int) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	i.analyses.Add(ctx, 1, attrs)
	i.duration.Record(ctx, d.Seconds(), attrs)
	if missing > 0 {
		i.missing.Add(ctx, int64(missing), metric.WithAttributes(attribute.String("operation", operation)))
	}
}
