package httpapi

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	keyPodName contextKey = iota
	keyUserID
	keyPodScope
	keyLogger
)

func withPodName(ctx context.Context, pod string) context.Context {
	return context.WithValue(ctx, keyPodName, pod)
}

func podNameFrom(ctx context.Context) string {
	pod, _ := ctx.Value(keyPodName).(string)
	return pod
}

func withUserID(ctx context.Context, userID, podScope string) context.Context {
	ctx = context.WithValue(ctx, keyUserID, userID)
	return context.WithValue(ctx, keyPodScope, podScope)
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(keyUserID).(string)
	return userID
}

func podScopeFrom(ctx context.Context) string {
	scope, _ := ctx.Value(keyPodScope).(string)
	return scope
}

func withLogger(ctx context.Context, log *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, keyLogger, log)
}

func loggerFrom(ctx context.Context) *zap.SugaredLogger {
	if log, ok := ctx.Value(keyLogger).(*zap.SugaredLogger); ok && log != nil {
		return log
	}
	return zap.NewNop().Sugar()
}
