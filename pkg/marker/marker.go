// Package marker persists the "last successful backup" timestamp that gates
// incremental file selection.
package marker

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Epoch is returned whenever no usable marker exists. Every file is newer
// than it, so a run against it degrades to a full backup.
var Epoch = time.Unix(0, 0)

type Marker struct {
	logger logrus.FieldLogger
	path   string
}

func New(logger logrus.FieldLogger, path string) *Marker {
	return &Marker{
		logger: logger,
		path:   path,
	}
}

func (m *Marker) Path() string {
	return m.path
}

// Read returns the persisted timestamp. A missing, empty or malformed file
// yields Epoch rather than an error.
func (m *Marker) Read() time.Time {
	logger := m.logger.WithField("marker", m.path)

	data, err := ioutil.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Marker file does not exist, assuming full backup")
		} else {
			logger.WithError(err).Warn("Unable to read marker file, assuming full backup")
		}
		return Epoch
	}

	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if line == "" {
		logger.Debug("Marker file is empty, assuming full backup")
		return Epoch
	}

	seconds, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		logger.WithError(err).Warnf("Invalid timestamp in %s, assuming full backup", m.path)
		return Epoch
	}

	return time.Unix(seconds, 0)
}

// Write replaces the marker with t. The file is swapped in with a rename so a
// crash never leaves a half-written value behind.
func (m *Marker) Write(t time.Time) error {
	dir := filepath.Dir(m.path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "Unable to create marker directory")
	}

	tmp, err := ioutil.TempFile(dir, ".marker-")
	if err != nil {
		return errors.Wrap(err, "Unable to create temporary marker file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatInt(t.Unix(), 10)); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Unable to write marker")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Unable to sync marker")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "Unable to close marker")
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return errors.Wrap(err, "Unable to replace marker")
	}

	return nil
}
