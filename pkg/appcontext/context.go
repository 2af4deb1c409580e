package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	runIdKeyId contextId = iota
	backupTypeKeyId
	directoryKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithRunId(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, runIdKeyId, id)
}

func WithBackupType(ctx context.Context, backupType string) context.Context {
	return context.WithValue(ctx, backupTypeKeyId, backupType)
}

// WithDirectory marks the context with the source directory a worker is scanning.
func WithDirectory(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, directoryKeyId, dir)
}

func RunIdFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}

	id, _ := ctx.Value(runIdKeyId).(int64)
	return id
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxBackupType, ok := ctx.Value(backupTypeKeyId).(string); ok && ctxBackupType != "" {
		result = result.WithField("backup_type", ctxBackupType)
	}

	if ctxRunId, ok := ctx.Value(runIdKeyId).(int64); ok && ctxRunId != 0 {
		result = result.WithField("run_id", ctxRunId)
	}

	if ctxDirectory, ok := ctx.Value(directoryKeyId).(string); ok && ctxDirectory != "" {
		result = result.WithField("directory", ctxDirectory)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
