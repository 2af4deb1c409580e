package backupfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(Clock),
	fx.Provide(Marker),
	fx.Provide(Scanner),
	fx.Provide(FileBackup),
	fx.Provide(Cleaner),
	fx.Provide(MountManagerConfigProvider),
	fx.Provide(MountManager),
	fx.Provide(Dumper),
	fx.Provide(TransferManager),
	fx.Provide(Notifiers),
	fx.Provide(Runner),
	fx.Provide(Daemon),
	fx.Invoke(Run),
)
