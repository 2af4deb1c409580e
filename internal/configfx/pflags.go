package configfx

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const (
	FlagConfig = "config"
	FlagFull   = "full"
	FlagDaemon = "daemon"
)

func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP(FlagConfig, "c", "", "Config file")
	fs.Bool(FlagFull, false, "Archive every file instead of the ones changed since the last backup")
	fs.Bool(FlagDaemon, false, "Keep running and back up on the configured schedule")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--daemon] [--full] [--config <path>] {daily|monthly|yearly}\n", name)
		fs.PrintDefaults()
	}

	return fs
}

func PFlags() (*pflag.FlagSet, error) {
	fs := NewFlagSet(os.Args[0])

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	return fs, nil
}
