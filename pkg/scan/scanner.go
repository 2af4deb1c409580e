// Package scan walks source directories and selects the files a backup run
// has to archive.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

type MarkerReader interface {
	Read() time.Time
}

// Selector is the selection policy of one run: exclusion first, then the
// incremental threshold unless the run is a full one.
type Selector struct {
	Filter *Filter
	Since  time.Time
	Full   bool
}

func (s Selector) Includes(path string, modTime time.Time) bool {
	return !s.Excludes(path) && s.Changed(modTime)
}

// Excludes only looks at the name, so it can run before the file is stat'ed.
func (s Selector) Excludes(path string) bool {
	return s.Filter.IsExcluded(filepath.Ext(path))
}

func (s Selector) Changed(modTime time.Time) bool {
	return s.Full || modTime.After(s.Since)
}

type Scanner struct {
	logger logrus.FieldLogger
	filter *Filter
	marker MarkerReader
}

func NewScanner(logger logrus.FieldLogger, filter *Filter, marker MarkerReader) *Scanner {
	return &Scanner{
		logger: logger,
		filter: filter,
		marker: marker,
	}
}

// Selector reads the marker once and returns the policy for a run. Full runs
// do not need the marker at all.
func (s *Scanner) Selector(full bool) Selector {
	sel := Selector{Filter: s.filter, Full: full}

	if !full && s.marker != nil {
		sel.Since = s.marker.Read()
	}

	return sel
}

// Count returns how many files a run over dirs would archive. Directories
// that are missing or unreadable are skipped with a warning.
func (s *Scanner) Count(ctx context.Context, dirs []string, full bool) int {
	return s.CountSelected(ctx, dirs, s.Selector(full))
}

// CountSelected is Count with a selector the caller already resolved.
func (s *Scanner) CountSelected(ctx context.Context, dirs []string, sel Selector) int {
	count := 0

	for _, dir := range dirs {
		_ = s.walk(ctx, dir, sel, func(FileEntry) error {
			count++
			return nil
		})
	}

	return count
}

// Scan calls fn for every selected file under dir, in lexical order. The walk
// ends early, without an error, once ctx is cancelled. An error returned by fn
// aborts the walk and is returned as is.
func (s *Scanner) Scan(ctx context.Context, dir string, full bool, fn func(FileEntry) error) error {
	return s.walk(ctx, dir, s.Selector(full), fn)
}

// ScanSelected is Scan with a selector the caller already resolved, so every
// directory of a run is judged against the same marker value.
func (s *Scanner) ScanSelected(ctx context.Context, dir string, sel Selector, fn func(FileEntry) error) error {
	return s.walk(ctx, dir, sel, fn)
}

func (s *Scanner) walk(ctx context.Context, dir string, sel Selector, fn func(FileEntry) error) error {
	logger := appcontext.LoggerFromContext(s.logger, appcontext.WithDirectory(ctx, dir))

	info, err := os.Stat(dir)
	if err != nil {
		logger.WithError(err).Warn("Directory does not exist or is not accessible, skipping")
		return nil
	}
	if !info.IsDir() {
		logger.Warn("Source is not a directory, skipping")
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}

		if err != nil {
			if d != nil && d.IsDir() {
				logger.WithError(err).WithField("path", path).Warn("Unable to read directory, skipping subtree")
				return filepath.SkipDir
			}

			logger.WithError(err).WithField("path", path).Warn("Unable to access path, skipping")
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if sel.Excludes(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("Unable to stat file, skipping")
			return nil
		}

		if !sel.Changed(fi.ModTime()) {
			return nil
		}

		return fn(FileEntry{
			Path:    path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Mode:    fi.Mode(),
		})
	})
}
