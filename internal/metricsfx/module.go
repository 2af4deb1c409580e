package metricsfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(HttpServerConfigProvider),
	fx.Provide(HttpServer),
	fx.Provide(HttpRouter),
	fx.Provide(Registry),
	fx.Provide(Collector),
	fx.Invoke(RegisterHandlers),
	fx.Invoke(RunServer),
)
