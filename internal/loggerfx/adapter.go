package loggerfx

import (
	"context"
	"log"

	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

// DefaultLoggerAdapter feeds stdlib loggers (http.Server.ErrorLog) into logrus.
func DefaultLoggerAdapter(lc fx.Lifecycle, logger *logrus.Logger) *log.Logger {
	w := logger.WriterLevel(logrus.ErrorLevel)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return w.Close()
		},
	})

	return log.New(w, "", 0)
}
