package sqlfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(SqliteConfigProvider),
	fx.Provide(OpenSqliteDatabase),
	fx.Provide(RunsRepository),
	fx.Invoke(CloseSqliteDatabase),
	fx.Invoke(CloseUnfinishedRuns),
)
