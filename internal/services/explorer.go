package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schememap/internal/core"
	"schememap/internal/dataset"
	applog "schememap/internal/log"
	"schememap/internal/metrics"
)

// ErrInvalidCriteria wraps every criteria validation failure.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Snapshots provides the current dataset.
type Snapshots interface {
	Current() (*dataset.Dataset, error)
}

// SchemeRow is one line of the eligible schemes table.
type SchemeRow struct {
	SchemeName string
	State      string
	Benefit    decimal.Decimal
}

// Result is the output of one exploration. When Empty is set no other
// derived field is populated.
type Result struct {
	Criteria       core.Criteria
	Empty          bool
	Regions        []core.EnrichedRegion
	Summaries      []core.StateSummary
	Rows           []SchemeRow
	MaxBenefit     decimal.Decimal
	DatasetVersion string
}

// Explorer runs filter, aggregate and join against the current snapshot.
// Every call derives fresh values; nothing is shared between calls.
type Explorer struct {
	data      Snapshots
	incomeMax int64
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *applog.StructuredLogger
}

func NewExplorer(data Snapshots, incomeMax int64, m *metrics.Metrics, logger *applog.Logger) *Explorer {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Explorer{
		data:      data,
		incomeMax: incomeMax,
		metrics:   m,
		tracer:    otel.Tracer("schememap/explorer"),
		logger:    applog.NewStructuredLogger(logger),
	}
}

// IncomeMax is the upper bound accepted for Criteria.Income.
func (e *Explorer) IncomeMax() int64 { return e.incomeMax }

// Categories lists the categories of the current snapshot.
func (e *Explorer) Categories() ([]string, error) {
	d, err := e.data.Current()
	if err != nil {
		return nil, err
	}
	return d.Categories(), nil
}

// Explore validates c and runs the pipeline. An empty filter result is
// reported through Result.Empty, not as an error.
func (e *Explorer) Explore(ctx context.Context, c core.Criteria) (Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "explore", trace.WithAttributes(
		attribute.String("criteria.category", c.Category),
		attribute.String("criteria.gender", c.Gender),
		attribute.String("criteria.income", c.Income.String()),
	))
	defer span.End()

	if err := c.Validate(e.incomeMax); err != nil {
		e.metrics.IncrementExploration("invalid")
		span.RecordError(err)
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidCriteria, err)
	}

	d, err := e.data.Current()
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	res := Result{Criteria: c, DatasetVersion: d.Version}

	filtered := stage(ctx, e, "filter", func() []core.SchemeRecord {
		return core.Filter(d.Schemes, c)
	})
	span.SetAttributes(attribute.Int("filter.matched", len(filtered)))
	if len(filtered) == 0 {
		res.Empty = true
		e.finish(ctx, res, 0, start)
		return res, nil
	}

	res.Summaries = stage(ctx, e, "aggregate", func() []core.StateSummary {
		return core.Aggregate(filtered)
	})
	res.Regions = stage(ctx, e, "join", func() []core.EnrichedRegion {
		return core.Join(d.Regions, res.Summaries)
	})
	res.MaxBenefit = core.MaxBenefit(res.Regions)

	res.Rows = make([]SchemeRow, len(filtered))
	for i, r := range filtered {
		res.Rows[i] = SchemeRow{SchemeName: r.SchemeName, State: r.State, Benefit: r.Benefit}
	}

	e.finish(ctx, res, len(filtered), start)
	return res, nil
}

func (e *Explorer) finish(ctx context.Context, res Result, matched int, start time.Time) {
	outcome := "ok"
	if res.Empty {
		outcome = "empty"
	} else {
		e.metrics.ObserveMatched(matched)
	}
	e.metrics.IncrementExploration(outcome)
	e.metrics.ObserveStage("total", time.Since(start))
	e.logger.LogExploration(ctx, res.Criteria.Category, res.Criteria.Gender, res.Criteria.Income.String(),
		matched, len(res.Summaries), res.Empty, res.DatasetVersion)
}

// stage runs fn inside a child span and records its latency.
func stage[T any](ctx context.Context, e *Explorer, name string, fn func() T) T {
	_, span := e.tracer.Start(ctx, name)
	defer span.End()
	start := time.Now()
	out := fn()
	e.metrics.ObserveStage(name, time.Since(start))
	return out
}
