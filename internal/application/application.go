package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// ErrValidation marks errors caused by malformed input.
var ErrValidation = errors.New("validation failed")

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

const spanPrefix = "UC."

// Instrument carries the fixed observability dependencies of one application service.
type Instrument struct {
	tracer observability.Tracer
	// Base logger with fixed fields prebound.
	log observability.Logger
	// RED metrics (supplied via DI; do not instantiate inside methods).
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstrument(tel observability.Observability, service string) *Instrument {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Instrument{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (in *Instrument) Logger() observability.Logger { return in.log }

// Call is one in-flight use case execution. Outcome and Status default to success/OK.
type Call struct {
	in      *Instrument
	useCase string
	span    trace.Span
	logger  observability.Logger
	start   time.Time
	Outcome string
	Status  string
	fields  []observability.Field
}

// Begin opens the span and binds a use-case logger onto the returned context.
func (in *Instrument) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Call) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)

	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	return ctx, &Call{
		in:      in,
		useCase: useCase,
		span:    span,
		logger:  logger,
		start:   time.Now(),
		Outcome: "success",
		Status:  "OK",
	}
}

func (c *Call) Span() trace.Span { return c.span }

func (c *Call) Logger() observability.Logger { return c.logger }

// Fail marks the call as an error with a machine-readable status.
func (c *Call) Fail(status string) {
	c.Outcome, c.Status = "error", status
}

// Field adds a field to the closing use_case_done line.
func (c *Call) Field(key string, value any) {
	c.fields = append(c.fields, observability.F(key, value))
}

// End closes the span, records RED metrics and writes the use_case_done line.
func (c *Call) End(err error) {
	lat := time.Since(c.start).Seconds()
	if err != nil && c.Outcome == "success" {
		c.Outcome = "error"
		if c.Status == "OK" {
			c.Status = "FAILED"
		}
	}

	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, c.Status)
	} else {
		c.span.SetStatus(codes.Ok, c.Status)
	}
	c.span.End()

	c.in.reqCounter.Add(1,
		observability.L("use_case", c.useCase),
		observability.L("outcome", c.Outcome),
	)
	c.in.durHistogram.Observe(lat,
		observability.L("use_case", c.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", c.Outcome),
		observability.F("status", c.Status),
		observability.F("latency_seconds", lat),
	}, c.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	c.logger.Info("use_case_done", fields...)
}
