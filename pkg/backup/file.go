package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/yurykabanov/securevault/pkg/appcontext"
	"github.com/yurykabanov/securevault/pkg/archive"
	"github.com/yurykabanov/securevault/pkg/scan"
)

// Result describes a finished file backup.
type Result struct {
	// Empty is set when nothing was selected and no archive was created.
	Empty bool

	Files int64
	Bytes int64 // payload bytes read from the sources

	// ClosedAt is taken right after the archive was closed; it becomes the
	// next incremental marker once the archive verifies.
	ClosedAt time.Time
}

// FileBackup archives source directories into one tar+gzip file using a
// bounded pool of workers, one work item per directory.
type FileBackup struct {
	logger  logrus.FieldLogger
	scanner *scan.Scanner
	clock   clock.Clock
	workers int

	open func(path string) (io.ReadCloser, error)
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func NewFileBackup(logger logrus.FieldLogger, scanner *scan.Scanner, clk clock.Clock, workers int) *FileBackup {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if clk == nil {
		clk = clock.WallClock
	}

	return &FileBackup{
		logger:  logger,
		scanner: scanner,
		clock:   clk,
		workers: workers,
		open:    openFile,
	}
}

type progress struct {
	total     int64
	processed *atomic.Int64
	bytes     *atomic.Int64
	bucket    *atomic.Int64
}

func newProgress(total int) *progress {
	return &progress{
		total:     int64(total),
		processed: atomic.NewInt64(0),
		bytes:     atomic.NewInt64(0),
		bucket:    atomic.NewInt64(0),
	}
}

// add records one archived file and reports whether a new 10% step was
// reached by this call.
func (p *progress) add(size int64) (int64, int64, bool) {
	n := p.processed.Inc()
	p.bytes.Add(size)

	percent := n * 100 / p.total
	if percent > 100 {
		percent = 100
	}

	step := percent / 10
	old := p.bucket.Load()

	return n, percent, step > old && p.bucket.CompareAndSwap(old, step)
}

// Execute archives every selected file of dirs into output. Cancellation of
// ctx closes the partial archive and yields ErrInterrupted.
func (b *FileBackup) Execute(ctx context.Context, dirs []string, output string, full bool) (Result, error) {
	logger := appcontext.LoggerFromContext(b.logger, ctx).WithField("archive", output)

	sel := b.scanner.Selector(full)

	total := b.scanner.CountSelected(ctx, dirs, sel)
	if ctx.Err() != nil {
		return Result{}, ErrInterrupted
	}
	if total == 0 {
		logger.Info("No files to backup")
		return Result{Empty: true}, nil
	}

	logger.WithFields(logrus.Fields{
		"total_files": total,
		"full":        full,
		"workers":     b.workers,
	}).Info("Starting file backup")

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return Result{}, errors.Wrapf(err, "Unable to create archive directory for %s", output)
	}

	w, err := archive.Create(output, b.workers)
	if err != nil {
		return Result{}, err
	}

	self, err := filepath.Abs(output)
	if err != nil {
		self = output
	}

	p := newProgress(total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			return b.backupDirectory(gctx, dir, sel, w, self, p)
		})
	}

	werr := g.Wait()
	cerr := w.Close()

	// the parent context, not gctx: a failing worker also cancels gctx
	if ctx.Err() != nil {
		if cerr != nil {
			logger.WithError(cerr).Debug("Partial archive closed with error")
		}
		logger.WithField("processed", p.processed.Load()).Warn("File backup interrupted")
		return Result{}, ErrInterrupted
	}

	if werr != nil {
		return Result{}, werr
	}
	if cerr != nil {
		return Result{}, cerr
	}

	result := Result{
		Files:    p.processed.Load(),
		Bytes:    p.bytes.Load(),
		ClosedAt: b.clock.Now(),
	}

	logger.WithFields(logrus.Fields{
		"files": result.Files,
		"size":  humanize.Bytes(uint64(result.Bytes)),
	}).Info("File backup finished")

	return result, nil
}

func (b *FileBackup) backupDirectory(ctx context.Context, dir string, sel scan.Selector, w *archive.Writer, self string, p *progress) error {
	ctx = appcontext.WithDirectory(ctx, dir)
	logger := appcontext.LoggerFromContext(b.logger, ctx)

	logger.Debug("Worker started")

	err := b.scanner.ScanSelected(ctx, dir, sel, func(entry scan.FileEntry) error {
		if ctx.Err() != nil {
			return archive.ErrCancelled
		}

		if abs, err := filepath.Abs(entry.Path); err == nil && abs == self {
			return nil
		}

		return b.appendFile(ctx, logger, w, entry, p)
	})

	// the caller tells interruption apart from failure
	if err == archive.ErrCancelled {
		return nil
	}

	return err
}

func (b *FileBackup) appendFile(ctx context.Context, logger logrus.FieldLogger, w *archive.Writer, entry scan.FileEntry, p *progress) error {
	f, err := b.open(entry.Path)
	if err != nil {
		logger.WithError(err).WithField("file", entry.Path).Warn("Unable to open file, skipping")
		return nil
	}
	defer f.Close()

	err = w.Append(ctx, archive.Entry{
		Path:    entry.Path,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}, f)
	if archive.IsReadError(err) {
		logger.WithError(errors.Cause(err)).WithField("file", entry.Path).Warn("Unable to read file, stored zero-filled")
		return nil
	}
	if err != nil {
		return err
	}

	n, percent, report := p.add(entry.Size)

	logger.WithField("file", entry.Path).Debugf("Archived file (%d/%d)", n, p.total)

	if report {
		b.logger.WithFields(logrus.Fields{
			"processed": n,
			"total":     p.total,
		}).Infof("Progress: %d%%", percent)
	}

	return nil
}
