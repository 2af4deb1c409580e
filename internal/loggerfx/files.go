package loggerfx

import (
	"context"
	"io"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yurykabanov/securevault/internal/configfx"
)

const (
	ConfigLogMaxSize = "log.max_size_mb"

	logFileName      = "backup.log"
	errorLogFileName = "errors.log"
)

// FileHook mirrors every entry into the backup log and error entries into the
// error log, always in the line format.
type FileHook struct {
	mu        sync.Mutex
	all       io.Writer
	errors    io.Writer
	formatter logrus.Formatter
}

func NewFileHook(all, errors io.Writer) *FileHook {
	return &FileHook{
		all:       all,
		errors:    errors,
		formatter: &LineFormatter{},
	}
}

func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.all.Write(line)

	if entry.Level <= logrus.ErrorLevel {
		_, errErr := h.errors.Write(line)
		err = multierr.Append(err, errErr)
	}

	return err
}

func rotatingFile(path string, maxSize int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: 5,
		LocalTime:  true,
	}
}

func RegisterFileHook(lc fx.Lifecycle, logger *logrus.Logger, v *viper.Viper, settings *configfx.Settings) {
	maxSize := v.GetInt(ConfigLogMaxSize)

	all := rotatingFile(filepath.Join(settings.BackupBase, logFileName), maxSize)
	errors := rotatingFile(filepath.Join(settings.BackupBase, errorLogFileName), maxSize)

	logger.AddHook(NewFileHook(all, errors))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return multierr.Combine(all.Close(), errors.Close())
		},
	})
}
