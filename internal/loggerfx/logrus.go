package loggerfx

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	ConfigLogLevel  = "log.level"
	ConfigLogFormat = "log.format"
)

// stdout uses the line format until the configuration is known
var logger = func() *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetFormatter(&LineFormatter{})
	return l
}()

func Logger() *logrus.Logger {
	return logger
}

func formatter(name string) logrus.Formatter {
	switch name {
	case "json":
		return &logrus.JSONFormatter{}
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	default:
		return &LineFormatter{}
	}
}

func ConfigureLogger(logger *logrus.Logger, v *viper.Viper) {
	logger.SetFormatter(formatter(v.GetString(ConfigLogFormat)))

	level, err := logrus.ParseLevel(v.GetString(ConfigLogLevel))
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
}
