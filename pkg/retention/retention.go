// Package retention prunes backup artifacts that outlived the retention window.
package retention

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Cleaner struct {
	logger logrus.FieldLogger
	clock  clock.Clock
}

func New(logger logrus.FieldLogger, clk clock.Clock) *Cleaner {
	if clk == nil {
		clk = clock.WallClock
	}

	return &Cleaner{
		logger: logger,
		clock:  clk,
	}
}

// Clean removes every regular file in folders last modified more than
// retentionDays ago. Folders are not descended into. The first failed
// removal aborts the cleanup. A non-positive retention keeps everything.
func (c *Cleaner) Clean(folders []string, retentionDays int) error {
	if retentionDays <= 0 {
		c.logger.WithField("retention_days", retentionDays).Debug("Retention disabled, nothing to clean")
		return nil
	}

	threshold := c.clock.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	for _, folder := range folders {
		if err := c.cleanFolder(folder, threshold); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cleaner) cleanFolder(folder string, threshold time.Time) error {
	logger := c.logger.WithField("folder", folder)

	files, err := ioutil.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Backup folder does not exist, nothing to clean")
			return nil
		}
		return errors.Wrapf(err, "Unable to list backup folder %s", folder)
	}

	for _, file := range files {
		if !file.Mode().IsRegular() || !file.ModTime().Before(threshold) {
			continue
		}

		path := filepath.Join(folder, file.Name())

		if err := os.Remove(path); err != nil {
			logger.WithError(err).WithField("file", path).Error("Failed to remove old backup")
			return errors.Wrapf(err, "Failed to remove old backup %s", path)
		}

		logger.WithField("file", path).Info("Removed old backup")
	}

	return nil
}
