// Package dump produces compressed database dumps for backup runs.
package dump

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	TypeMySQL      = "mysql"
	TypePostgreSQL = "postgresql"
	TypeDocker     = "docker"

	extension = ".sql.gz"
)

var ErrInvalidCredentials = errors.New("invalid database credentials")

type Database struct {
	Type     string `mapstructure:"type"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`

	// docker only
	Image   string   `mapstructure:"image"`
	Command []string `mapstructure:"command"`
}

// streamCommand runs cmd and gzips its standard output into output. A
// failed dump leaves no file behind.
func streamCommand(ctx context.Context, logger logrus.FieldLogger, cmd *exec.Cmd, output string) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return errors.Wrapf(err, "Unable to create dump file %s", output)
	}

	defer func() {
		if err != nil {
			os.Remove(output)
		}
	}()

	gz := gzip.NewWriter(f)

	var stderr bytes.Buffer
	cmd.Stdout = gz
	cmd.Stderr = &stderr

	logger.WithField("command", cmd.Path).Debug("Running dump command")

	runErr := cmd.Run()
	closeErr := multierr.Combine(gz.Close(), f.Close())

	if runErr != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "Dump cancelled")
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Wrapf(runErr, "%s failed: %s", cmd.Path, msg)
		}
		return errors.Wrapf(runErr, "%s failed", cmd.Path)
	}

	if closeErr != nil {
		return errors.Wrapf(closeErr, "Unable to finish dump file %s", output)
	}

	return nil
}

// compressFile gzips src into dst.
func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "Unable to open dump %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "Unable to create dump file %s", dst)
	}

	defer func() {
		if err != nil {
			os.Remove(dst)
		}
	}()

	gz := gzip.NewWriter(out)

	if _, copyErr := io.Copy(gz, in); copyErr != nil {
		_ = multierr.Combine(gz.Close(), out.Close())
		return errors.Wrapf(copyErr, "Unable to compress dump %s", src)
	}

	if closeErr := multierr.Combine(gz.Close(), out.Sync(), out.Close()); closeErr != nil {
		return errors.Wrapf(closeErr, "Unable to finish dump file %s", dst)
	}

	return nil
}
