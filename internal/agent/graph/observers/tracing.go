package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type spanKey struct{}

// NewTracingCallbacks opens a span for every component run.
func NewTracingCallbacks(tracer trace.Tracer) einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info == nil {
				return ctx
			}
			ctx, span := tracer.Start(ctx, spanName(info), trace.WithAttributes(
				attribute.String("eino.component", string(info.Component)),
				attribute.String("eino.type", info.Type),
				attribute.String("eino.name", info.Name),
			))
			return context.WithValue(ctx, spanKey{}, span)
		}).
		OnEndFn(func(ctx context.Context, _ *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			if span, ok := ctx.Value(spanKey{}).(trace.Span); ok {
				span.SetStatus(codes.Ok, "")
				span.End()
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			if span, ok := ctx.Value(spanKey{}).(trace.Span); ok {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
			}
			return ctx
		}).
		Build()
}

func spanName(info *einocb.RunInfo) string {
	name := string(info.Component)
	if name == "" {
		name = "component"
	}
	if info.Name != "" {
		name += "/" + info.Name
	}
	return name
}
