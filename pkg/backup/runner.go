package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

const (
	timestampLayout = "20060102-150405"

	sysFolder = "sys"
	dbFolder  = "db"

	markerFile = "last_backup.txt"
)

// date component of the archive name per backup type
var dateLayouts = map[string]string{
	"daily":   "02",
	"monthly": "01",
	"yearly":  "2006",
}

func ValidType(backupType string) bool {
	_, ok := dateLayouts[backupType]
	return ok
}

type Config struct {
	BaseDir       string
	Dirs          []string
	RetentionDays int

	// Owner the artifacts are handed over to, "user" or "user:group".
	Owner string
}

func (c Config) SysDir() string {
	return filepath.Join(c.BaseDir, sysFolder)
}

func (c Config) DbDir() string {
	return filepath.Join(c.BaseDir, dbFolder)
}

func (c Config) MarkerPath() string {
	return filepath.Join(c.BaseDir, markerFile)
}

type Archiver interface {
	Execute(ctx context.Context, dirs []string, output string, full bool) (Result, error)
}

type Dumper interface {
	// Dump writes all databases next to prefix and returns the file created.
	Dump(ctx context.Context, prefix string) (string, error)
}

type Transferer interface {
	Transfer(ctx context.Context, localFile, remoteDir string) error
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type RunRepository interface {
	Create(context.Context, Run) (Run, error)
	Update(context.Context, Run) error
}

type MarkerWriter interface {
	Write(time.Time) error
}

type Cleaner interface {
	Clean(folders []string, retentionDays int) error
}

type RunObserver interface {
	ObserveRun(Run)
}

type VerifyFunc func(path string) (bool, error)

// Runner performs one complete backup run: database dump, file archive,
// verification, hand over, retention and reporting.
type Runner struct {
	logger logrus.FieldLogger
	config Config
	clock  clock.Clock

	archiver Archiver
	verify   VerifyFunc
	marker   MarkerWriter
	cleaner  Cleaner
	repo     RunRepository

	dumper     Dumper
	transferer Transferer
	notifier   Notifier
	observer   RunObserver
}

func NewRunner(
	logger logrus.FieldLogger,
	config Config,
	clk clock.Clock,
	archiver Archiver,
	verify VerifyFunc,
	marker MarkerWriter,
	cleaner Cleaner,
	repo RunRepository,
) *Runner {
	if clk == nil {
		clk = clock.WallClock
	}

	return &Runner{
		logger:   logger,
		config:   config,
		clock:    clk,
		archiver: archiver,
		verify:   verify,
		marker:   marker,
		cleaner:  cleaner,
		repo:     repo,
	}
}

func (r *Runner) WithDumper(d Dumper) *Runner {
	r.dumper = d
	return r
}

func (r *Runner) WithTransferer(t Transferer) *Runner {
	r.transferer = t
	return r
}

func (r *Runner) WithNotifier(n Notifier) *Runner {
	r.notifier = n
	return r
}

func (r *Runner) WithObserver(o RunObserver) *Runner {
	r.observer = o
	return r
}

// Execute runs one backup of the given type: daily, monthly or yearly.
func (r *Runner) Execute(ctx context.Context, backupType string, full bool) error {
	dateLayout, ok := dateLayouts[backupType]
	if !ok {
		r.logger.WithField("backup_type", backupType).Error("Invalid backup type")
		return errors.Errorf("Invalid backup type %q. Use daily, monthly, or yearly.", backupType)
	}

	now := r.clock.Now()
	timestamp := now.Format(timestampLayout)

	archivePath := filepath.Join(
		r.config.SysDir(),
		fmt.Sprintf("sys-%s-%s-%s.tar.gz", backupType, now.Format(dateLayout), timestamp),
	)

	run := r.start(ctx, Run{
		Type:        backupType,
		Full:        full,
		ArchivePath: archivePath,
		Status:      RunStatusStarted,
		StartedAt:   now,
	})

	ctx = appcontext.WithRunId(appcontext.WithBackupType(ctx, backupType), run.Id)
	logger := appcontext.LoggerFromContext(r.logger, ctx)

	logger.WithField("full", full).Info("Backup started")

	run.DbDumpPath = r.dump(ctx, logger, filepath.Join(r.config.DbDir(), "all_databases_"+timestamp))

	result, err := r.archiver.Execute(ctx, r.config.Dirs, archivePath, full)
	if err != nil {
		status := RunStatusFailure
		if IsInterrupted(err) {
			status = RunStatusInterrupted
		}
		return r.fail(ctx, logger, run, status, fmt.Sprintf("File backup failed: %s", err), err)
	}

	var artifacts []string

	if result.Empty {
		logger.Info("No changed files, system archive skipped")
		run.ArchivePath = ""
	} else {
		ok, err := r.verify(archivePath)
		if err == nil && !ok {
			err = errors.Errorf("Archive %s did not verify", archivePath)
		}
		if err != nil {
			return r.fail(ctx, logger, run, RunStatusFailure, fmt.Sprintf("Backup verification failed: %s", err), err)
		}

		if err := r.marker.Write(result.ClosedAt); err != nil {
			return r.fail(ctx, logger, run, RunStatusFailure, fmt.Sprintf("Unable to update backup marker: %s", err), err)
		}

		artifacts = append(artifacts, archivePath)
	}

	if run.DbDumpPath != "" {
		artifacts = append(artifacts, run.DbDumpPath)
	}

	if err := chown(r.config.Owner, artifacts...); err != nil {
		return r.fail(ctx, logger, run, RunStatusFailure, fmt.Sprintf("Failed to change ownership: %s", err), err)
	}

	r.transfer(ctx, logger, run)

	if err := r.cleaner.Clean([]string{r.config.SysDir(), r.config.DbDir()}, r.config.RetentionDays); err != nil {
		r.alert(ctx, logger, fmt.Sprintf("Cleanup failed: %s", err))
	}

	run.Files = result.Files
	if run.ArchivePath != "" {
		if fi, err := os.Stat(run.ArchivePath); err == nil {
			run.Bytes = fi.Size()
		} else {
			logger.WithError(err).Warn("Unable to calculate archive size")
		}
	}

	archiveName := run.ArchivePath
	if archiveName == "" {
		archiveName = "no file changes"
	}
	dumpName := run.DbDumpPath
	if dumpName == "" {
		dumpName = "no database backup"
	}

	message := fmt.Sprintf("Backup completed: %s and %s", archiveName, dumpName)
	logger.WithFields(logrus.Fields{
		"files": run.Files,
		"size":  humanize.Bytes(uint64(run.Bytes)),
	}).Info(message)
	r.notify(ctx, logger, message)

	r.finish(logger, run, RunStatusSuccess, nil)

	return nil
}

func (r *Runner) dump(ctx context.Context, logger logrus.FieldLogger, prefix string) string {
	if r.dumper == nil {
		logger.Debug("No database configured, dump skipped")
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		r.alert(ctx, logger, fmt.Sprintf("Database backup failed: %s", err))
		return ""
	}

	path, err := r.dumper.Dump(ctx, prefix)
	if err != nil {
		r.alert(ctx, logger, fmt.Sprintf("Database backup failed: %s", err))
		logger.Warn("Proceeding with file backup")
		return ""
	}

	logger.WithField("dump", path).Info("Database backup finished")

	return path
}

func (r *Runner) transfer(ctx context.Context, logger logrus.FieldLogger, run Run) {
	if r.transferer == nil {
		return
	}

	if run.ArchivePath != "" {
		if err := r.transferer.Transfer(ctx, run.ArchivePath, r.config.SysDir()); err != nil {
			r.alert(ctx, logger, fmt.Sprintf("File transfer failed: %s", err))
		}
	}

	if run.DbDumpPath != "" {
		if err := r.transferer.Transfer(ctx, run.DbDumpPath, r.config.DbDir()); err != nil {
			r.alert(ctx, logger, fmt.Sprintf("Database transfer failed: %s", err))
		}
	}
}

func (r *Runner) fail(ctx context.Context, logger logrus.FieldLogger, run Run, status RunStatus, message string, err error) error {
	r.alert(ctx, logger, message)
	r.finish(logger, run, status, err)

	if IsInterrupted(err) {
		return err
	}

	return errors.Wrap(err, message)
}

// alert logs message as an error and forwards it to the notifier.
func (r *Runner) alert(ctx context.Context, logger logrus.FieldLogger, message string) {
	logger.Error(message)
	r.notify(ctx, logger, message)
}

func (r *Runner) notify(ctx context.Context, logger logrus.FieldLogger, message string) {
	if r.notifier == nil {
		return
	}

	// reports about an interrupted run still have to go out
	if err := r.notifier.Notify(context.WithoutCancel(ctx), message); err != nil {
		logger.WithError(err).Warn("Unable to send notification")
	}
}

func (r *Runner) start(ctx context.Context, run Run) Run {
	if r.repo == nil {
		return run
	}

	created, err := r.repo.Create(ctx, run)
	if err != nil {
		r.logger.WithError(err).Warn("Unable to record backup run")
		return run
	}

	return created
}

func (r *Runner) finish(logger logrus.FieldLogger, run Run, status RunStatus, err error) {
	now := r.clock.Now()

	run.Status = status
	run.FinishedAt = &now
	if err != nil {
		run.Error = err.Error()
	}

	if r.repo != nil && run.Id != 0 {
		if err := r.repo.Update(context.Background(), run); err != nil {
			logger.WithError(err).Warn("Unable to update backup run record")
		}
	}

	if r.observer != nil {
		r.observer.ObserveRun(run)
	}
}
