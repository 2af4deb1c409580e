package backupfx

import (
	"context"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"go.uber.org/fx"

	"github.com/yurykabanov/securevault/internal/configfx"
	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/daemon"
	"github.com/yurykabanov/securevault/pkg/schedule"
)

// Daemon is only built for --daemon, so one-shot runs never fail on a
// schedule they do not use.
func Daemon(
	logger *logrus.Logger,
	settings *configfx.Settings,
	cmd *configfx.Command,
	clk clock.Clock,
	runner *backup.Runner,
) (*daemon.Daemon, error) {
	if !cmd.Daemon {
		return nil, nil
	}

	sched, err := schedule.New(settings.Schedule)
	if err != nil {
		return nil, err
	}

	trigger := func(ctx context.Context) error {
		return runner.Execute(ctx, cmd.BackupType, cmd.Full)
	}

	return daemon.New(logger, sched, clk, trigger), nil
}

// Run starts the requested work once the application is up and stops the
// application when the work is done. A failed or interrupted one-shot backup
// exits with 1.
func Run(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *logrus.Logger,
	cmd *configfx.Command,
	runner *backup.Runner,
	d *daemon.Daemon,
) {
	work := func(ctx context.Context) int {
		if cmd.Daemon {
			if err := d.Run(ctx); err != nil {
				logger.WithError(err).Error("Daemon failed")
				return 1
			}
			return 0
		}

		if err := runner.Execute(ctx, cmd.BackupType, cmd.Full); err != nil {
			if backup.IsInterrupted(err) {
				logger.Warn("Backup interrupted")
			} else {
				logger.WithError(err).Error("Backup failed")
			}
			return 1
		}

		logger.Info("Backup completed successfully")
		return 0
	}

	runWork(lc, shutdowner, logger, work)
}

// runWork ties work to the lifecycle. A signal stops the application before
// the work has returned, so a non-zero code is also reported from OnStop:
// fx exits with 1 when a stop hook fails.
func runWork(lc fx.Lifecycle, shutdowner fx.Shutdowner, logger logrus.FieldLogger, work func(ctx context.Context) int) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	code := atomic.NewInt32(0)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				code.Store(int32(work(ctx)))

				// on signals fx is already stopping
				if ctx.Err() == nil {
					if err := shutdowner.Shutdown(fx.ExitCode(int(code.Load()))); err != nil {
						logger.WithError(err).Error("Unable to shut down")
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}

			if c := code.Load(); c != 0 {
				return errors.Errorf("backup finished with exit code %d", c)
			}
			return nil
		},
	})
}
