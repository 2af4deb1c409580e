package backupfx

import (
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"github.com/yurykabanov/securevault/internal/configfx"
	"github.com/yurykabanov/securevault/pkg/archive"
	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/marker"
	"github.com/yurykabanov/securevault/pkg/notify"
	"github.com/yurykabanov/securevault/pkg/retention"
	"github.com/yurykabanov/securevault/pkg/scan"
	"github.com/yurykabanov/securevault/pkg/transfer"
)

func Clock() clock.Clock {
	return clock.WallClock
}

func Marker(logger *logrus.Logger, settings *configfx.Settings) *marker.Marker {
	return marker.New(logger, settings.BackupConfig().MarkerPath())
}

func Scanner(logger *logrus.Logger, settings *configfx.Settings, m *marker.Marker) *scan.Scanner {
	return scan.NewScanner(logger, scan.NewFilter(settings.ExcludeExtensions), m)
}

func FileBackup(logger *logrus.Logger, settings *configfx.Settings, scanner *scan.Scanner, clk clock.Clock) *backup.FileBackup {
	return backup.NewFileBackup(logger, scanner, clk, settings.Workers)
}

func Cleaner(logger *logrus.Logger, clk clock.Clock) *retention.Cleaner {
	return retention.New(logger, clk)
}

type RunnerParams struct {
	fx.In

	Logger   *logrus.Logger
	Settings *configfx.Settings
	Clock    clock.Clock

	FileBackup *backup.FileBackup
	Marker     *marker.Marker
	Cleaner    *retention.Cleaner
	Repository backup.RunRepository

	Dumper    backup.Dumper
	Transfers *transfer.Manager
	Notifiers notify.Multi
	Observer  backup.RunObserver `optional:"true"`
}

func Runner(p RunnerParams) *backup.Runner {
	runner := backup.NewRunner(
		p.Logger,
		p.Settings.BackupConfig(),
		p.Clock,
		p.FileBackup,
		archive.Verify,
		p.Marker,
		p.Cleaner,
		p.Repository,
	)

	if p.Dumper != nil {
		runner.WithDumper(p.Dumper)
	}
	if !p.Transfers.Empty() {
		runner.WithTransferer(p.Transfers)
	}
	if len(p.Notifiers) > 0 {
		runner.WithNotifier(p.Notifiers)
	}
	if p.Observer != nil {
		runner.WithObserver(p.Observer)
	}

	return runner
}
