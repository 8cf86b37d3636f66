// Package logger prefixes fiber log lines with the request's correlation id.
package logger

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
)

const noCorrelation = "-"

func withID(ctx context.Context, format string, args []interface{}) (string, []interface{}) {
	id := correlation.FromContext(ctx)
	if id == "" {
		id = noCorrelation
	}
	return "correlation_id=%s " + format, append([]interface{}{id}, args...)
}

// Debugf logs at debug level.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	f, a := withID(ctx, format, args)
	log.Debugf(f, a...)
}

// Infof logs at info level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	f, a := withID(ctx, format, args)
	log.Infof(f, a...)
}

// Warnf logs at warn level.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	f, a := withID(ctx, format, args)
	log.Warnf(f, a...)
}

// Errorf logs at error level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	f, a := withID(ctx, format, args)
	log.Errorf(f, a...)
}

// SetLevel maps APP_ENV to a fiber log level: dev logs debug lines.
func SetLevel(dev bool) {
	if dev {
		log.SetLevel(log.LevelDebug)
		return
	}
	log.SetLevel(log.LevelInfo)
}
