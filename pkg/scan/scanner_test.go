package scan

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMarker time.Time

func (m fixedMarker) Read() time.Time {
	return time.Time(m)
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

var markerTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, path string, modTime time.Time) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte(filepath.Base(path)), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

// tree builds a fixture where "new" files are newer than markerTime and "old"
// files are not; the ".log" and ".tmp" files are meant to be excluded.
func tree(t *testing.T) string {
	root := t.TempDir()

	newer := markerTime.Add(time.Hour)
	older := markerTime.Add(-time.Hour)

	writeFile(t, filepath.Join(root, "new.txt"), newer)
	writeFile(t, filepath.Join(root, "old.txt"), older)
	writeFile(t, filepath.Join(root, "same.txt"), markerTime)
	writeFile(t, filepath.Join(root, "new.log"), newer)
	writeFile(t, filepath.Join(root, "sub", "deep", "new.conf"), newer)
	writeFile(t, filepath.Join(root, "sub", "old.conf"), older)
	writeFile(t, filepath.Join(root, "sub", "old.tmp"), older)
	writeFile(t, filepath.Join(root, "sub", "NEW.LOG"), newer)
	writeFile(t, filepath.Join(root, "Makefile"), newer)

	return root
}

func collect(t *testing.T, s *Scanner, dir string, full bool) []string {
	var names []string

	err := s.Scan(context.Background(), dir, full, func(e FileEntry) error {
		rel, err := filepath.Rel(dir, e.Path)
		require.NoError(t, err)
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)

	sort.Strings(names)
	return names
}

func TestFilter_IsExcluded(t *testing.T) {
	f := NewFilter([]string{".log", ".tmp", ""})

	assert.True(t, f.IsExcluded(".log"))
	assert.True(t, f.IsExcluded(".tmp"))
	assert.False(t, f.IsExcluded(".LOG"), "matching is case-sensitive")
	assert.False(t, f.IsExcluded(".txt"))
	assert.False(t, f.IsExcluded(""))

	var nilFilter *Filter
	assert.False(t, nilFilter.IsExcluded(".log"))
}

func TestScanner_Scan_Incremental(t *testing.T) {
	root := tree(t)
	s := NewScanner(discardLogger(), NewFilter([]string{".log", ".tmp"}), fixedMarker(markerTime))

	assert.Equal(t, []string{"Makefile", "new.txt", "sub/NEW.LOG", "sub/deep/new.conf"}, collect(t, s, root, false))
}

func TestScanner_Scan_Full(t *testing.T) {
	root := tree(t)
	s := NewScanner(discardLogger(), NewFilter([]string{".log", ".tmp"}), fixedMarker(markerTime))

	assert.Equal(t, []string{
		"Makefile",
		"new.txt",
		"old.txt",
		"same.txt",
		"sub/NEW.LOG",
		"sub/deep/new.conf",
		"sub/old.conf",
	}, collect(t, s, root, true))
}

func TestScanner_Scan_EntryMetadata(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, markerTime.Add(time.Minute))

	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	var entries []FileEntry
	require.NoError(t, s.Scan(context.Background(), root, false, func(e FileEntry) error {
		entries = append(entries, e)
		return nil
	}))

	require.Len(t, entries, 1)
	assert.Equal(t, path, entries[0].Path)
	assert.Equal(t, int64(len("a.txt")), entries[0].Size)
	assert.True(t, entries[0].ModTime.Equal(markerTime.Add(time.Minute)))
	assert.True(t, entries[0].Mode.IsRegular())
}

func TestScanner_Count(t *testing.T) {
	first := tree(t)
	second := tree(t)
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	s := NewScanner(discardLogger(), NewFilter([]string{".log", ".tmp"}), fixedMarker(markerTime))

	assert.Equal(t, 8, s.Count(context.Background(), []string{first, missing, second}, false))
	assert.Equal(t, 14, s.Count(context.Background(), []string{first, missing, second}, true))
	assert.Equal(t, 0, s.Count(context.Background(), []string{missing}, true))
	assert.Equal(t, 0, s.Count(context.Background(), nil, true))
}

func TestScanner_Scan_MissingDirectory(t *testing.T) {
	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	called := false
	err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), true, func(FileEntry) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestScanner_Scan_NoMarkerMeansEverything(t *testing.T) {
	root := tree(t)
	s := NewScanner(discardLogger(), NewFilter(nil), nil)

	assert.Len(t, collect(t, s, root, false), 9)
}

func TestScanner_Scan_StopsOnCancellation(t *testing.T) {
	root := tree(t)
	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	visited := 0
	err := s.Scan(ctx, root, true, func(FileEntry) error {
		visited++
		cancel()
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, visited)
}

func TestScanner_Scan_CallbackError(t *testing.T) {
	root := tree(t)
	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	boom := errors.New("boom")
	err := s.Scan(context.Background(), root, true, func(FileEntry) error {
		return boom
	})

	assert.Equal(t, boom, err)
}

func TestScanner_Scan_SkipsUnreadableSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "visible.txt"), markerTime.Add(time.Hour))
	writeFile(t, filepath.Join(root, "locked", "hidden.txt"), markerTime.Add(time.Hour))

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	defer os.Chmod(locked, 0755)

	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	assert.Equal(t, []string{"visible.txt"}, collect(t, s, root, false))
}

func TestScanner_Scan_IgnoresSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	writeFile(t, target, markerTime.Add(time.Hour))

	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Skip("symlinks are not supported here")
	}

	s := NewScanner(discardLogger(), NewFilter(nil), fixedMarker(markerTime))

	assert.Equal(t, []string{"real.txt"}, collect(t, s, root, false))
}

func TestSelector_Includes(t *testing.T) {
	sel := Selector{Filter: NewFilter([]string{".log"}), Since: markerTime}

	assert.True(t, sel.Includes("/a/b.txt", markerTime.Add(time.Second)))
	assert.False(t, sel.Includes("/a/b.txt", markerTime))
	assert.False(t, sel.Includes("/a/b.log", markerTime.Add(time.Hour)))

	sel.Full = true
	assert.True(t, sel.Includes("/a/b.txt", markerTime.Add(-time.Hour)))
	assert.False(t, sel.Includes("/a/b.log", markerTime.Add(-time.Hour)), "exclusion wins over full backups")
}

func TestSelector_ExcludesAndChanged(t *testing.T) {
	sel := Selector{Filter: NewFilter([]string{".log"}), Since: markerTime}

	assert.True(t, sel.Excludes("/var/log/app.log"))
	assert.False(t, sel.Excludes("/var/log/app.log.1"))
	assert.False(t, Selector{}.Excludes("/var/log/app.log"), "no filter excludes nothing")

	assert.True(t, sel.Changed(markerTime.Add(time.Second)))
	assert.False(t, sel.Changed(markerTime))

	sel.Full = true
	assert.True(t, sel.Changed(markerTime.Add(-time.Hour)))
}
