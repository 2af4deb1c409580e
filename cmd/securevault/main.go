package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/yurykabanov/securevault/internal/backupfx"
	"github.com/yurykabanov/securevault/internal/configfx"
	"github.com/yurykabanov/securevault/internal/dockerfx"
	"github.com/yurykabanov/securevault/internal/loggerfx"
	"github.com/yurykabanov/securevault/internal/metricsfx"
	"github.com/yurykabanov/securevault/internal/sqlfx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(15*time.Second),
		fx.StopTimeout(time.Minute),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		dockerfx.Module,
		metricsfx.Module,
		backupfx.Module,
	)

	if err := app.Err(); err != nil {
		switch {
		case errors.Is(err, pflag.ErrHelp):
			os.Exit(0)
		case errors.Is(err, configfx.ErrUsage):
			configfx.NewFlagSet(os.Args[0]).Usage()
		default:
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}

	app.Run()
}
