package logutil

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	runSeqKey   contextKey = "run_seq"
	actionKey   contextKey = "action"
	providerKey contextKey = "provider"
)

// WithRun tags ctx with the pipeline run sequence number and action.
func WithRun(ctx context.Context, seq uint64, action string) context.Context {
	ctx = context.WithValue(ctx, runSeqKey, seq)
	return context.WithValue(ctx, actionKey, action)
}

// WithProvider tags ctx with the provider currently being attempted.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey, provider)
}

// RunSeq returns the run sequence number stored in ctx, or 0.
func RunSeq(ctx context.Context) uint64 {
	if v, ok := ctx.Value(runSeqKey).(uint64); ok {
		return v
	}
	return 0
}

// FromContext returns the process logger enriched with fields from ctx.
func FromContext(ctx context.Context) *zap.Logger {
	logger := L()
	if ctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 3)
	if seq := RunSeq(ctx); seq != 0 {
		fields = append(fields, zap.Uint64("run", seq))
	}
	if action, ok := ctx.Value(actionKey).(string); ok && action != "" {
		fields = append(fields, zap.String("action", action))
	}
	if provider, ok := ctx.Value(providerKey).(string); ok && provider != "" {
		fields = append(fields, zap.String("provider", provider))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
