// Package service implements the catalog queries and the rental state model
// on top of a storage.Storage.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bookshelf/internal/storage"
)

// TracerName is the instrumentation scope of service spans
const TracerName = "bookshelf/internal/service"

// Service is shared by the HTTP API, the pages and the bot
type Service struct {
	db      storage.Storage
	journal storage.Journal
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithJournal sets where rental events are recorded
func WithJournal(j storage.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithClock overrides the time source used for rental timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTracer sets the OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New creates a Service. Without options it uses the global tracer, the
// wall clock and a journal that discards events.
func New(db storage.Storage, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:      db,
		journal: storage.NopJournal{},
		logger:  logger,
		tracer:  otel.Tracer(TracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Storage returns the underlying store
func (s *Service) Storage() storage.Storage {
	return s.db
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span. Client errors are not span failures.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", KindOf(err).String()))
		if KindOf(err) == KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
