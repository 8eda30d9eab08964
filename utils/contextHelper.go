package utils

import (
	"context"

	"github.com/tsgsafety/osha_tracker/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyJobName       = appctx.ContextKeyJobName
	ContextKeyTriggeredBy   = appctx.ContextKeyTriggeredBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetJobNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyJobName)
}

func SetJobNameInContext(ctx context.Context, jobName string) context.Context {
	return appctx.Set(ctx, ContextKeyJobName, jobName)
}

// GetTriggeredByFromContext defaults to "system" when nothing was set.
func GetTriggeredByFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, ContextKeyTriggeredBy); ok && v != "" {
		return v
	}
	return "system"
}

func SetTriggeredByInContext(ctx context.Context, triggeredBy string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggeredBy, triggeredBy)
}
