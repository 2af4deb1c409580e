package configfx

import (
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "securevault"
	DefaultConfigDirectory = "securevault"
	DefaultConfigFile      = "backup_config"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}
)

// ViperProvider layers flags over environment (SECUREVAULT_*) over the config
// file over defaults. A file named with --config must exist; otherwise
// backup_config.* is looked up in the default paths and may be absent.
func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if err := v.BindPFlags(flagSet); err != nil {
		return nil, err
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := v.GetString(FlagConfig)

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(DefaultConfigFile)
		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}
	}

	err := v.ReadInConfig()

	switch {
	case err == nil:
		logger.WithField("config", v.ConfigFileUsed()).Debug("Loaded config file")
	case explicit != "":
		return nil, errors.Wrapf(err, "Unable to read config file %s", explicit)
	default:
		logger.WithError(err).Warn("Couldn't read config file, using defaults")
	}

	return v, nil
}
