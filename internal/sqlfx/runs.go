package sqlfx

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/http/handler"
	"github.com/yurykabanov/securevault/pkg/storage"
)

func RunsRepository(db *sqlx.DB) (
	*storage.RunRepository,
	backup.RunRepository,
	handler.RunRepository,
) {
	repo := storage.NewRunRepository(db)

	return repo, repo, repo
}

// CloseUnfinishedRuns marks runs a previous process left behind as interrupted.
func CloseUnfinishedRuns(lc fx.Lifecycle, logger *logrus.Logger, repo *storage.RunRepository, clk clock.Clock) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			n, err := repo.MarkUnfinished(ctx, clk.Now())
			if err != nil {
				logger.WithError(err).Warn("Unable to close unfinished runs")
				return nil
			}

			if n > 0 {
				logger.WithField("runs", n).Warn("Closed runs left unfinished by a previous process")
			}

			return nil
		},
	})
}
