package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxSpanKey struct{}

const maxStatementLen = 300

// PGXTracer creates spans for cart store queries and batches. It satisfies
// pgx.QueryTracer and pgx.BatchTracer.
type PGXTracer struct{}

var (
	_ pgx.QueryTracer = PGXTracer{}
	_ pgx.BatchTracer = PGXTracer{}
)

func (PGXTracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) context.Context {
	ctx, span := otel.Tracer("flexicart/store").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("db.system", "postgresql"))
	span.SetAttributes(attrs...)
	return context.WithValue(ctx, ctxSpanKey{}, span)
}

func (PGXTracer) end(ctx context.Context, err error) {
	span, ok := ctx.Value(ctxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceQueryStart starts a span for the SQL statement.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return t.start(ctx, "pgx.query", statementAttrs(data.SQL)...)
}

// TraceQueryEnd ends the span and records any error.
func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	t.end(ctx, data.Err)
}

// TraceBatchStart opens a span covering a whole batch.
func (t PGXTracer) TraceBatchStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchStartData) context.Context {
	size := 0
	if data.Batch != nil {
		size = data.Batch.Len()
	}
	return t.start(ctx, "pgx.batch", attribute.Int("db.batch.size", size))
}

// TraceBatchQuery records a failed statement inside a batch as a span event.
func (PGXTracer) TraceBatchQuery(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchQueryData) {
	if data.Err == nil {
		return
	}
	if span, ok := ctx.Value(ctxSpanKey{}).(trace.Span); ok {
		span.AddEvent("batch.query.error", trace.WithAttributes(statementAttrs(data.SQL)...))
	}
}

// TraceBatchEnd ends the batch span.
func (t PGXTracer) TraceBatchEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchEndData) {
	t.end(ctx, data.Err)
}

func statementAttrs(sql string) []attribute.KeyValue {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil
	}
	stmt := trimmed
	if len(stmt) > maxStatementLen {
		stmt = stmt[:maxStatementLen] + "..."
	}
	return []attribute.KeyValue{
		attribute.String("db.statement", stmt),
		attribute.String("db.operation", strings.ToUpper(strings.Fields(trimmed)[0])),
	}
}
