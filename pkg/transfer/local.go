package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Local copies artifacts into a directory, typically a mounted network or
// removable volume.
type Local struct {
	directory string
}

func NewLocal(directory string) *Local {
	return &Local{
		directory: directory,
	}
}

// Transfer copies localFile into <directory>/<base of remoteDir>/.
func (l *Local) Transfer(ctx context.Context, localFile, remoteDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(l.directory, filepath.Base(remoteDir))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "Unable to create target directory %s", dir)
	}

	dst := filepath.Join(dir, filepath.Base(localFile))

	if err := CopyFile(localFile, dst); err != nil {
		os.Remove(dst)
		return errors.Wrapf(err, "Unable to copy %s to %s", localFile, dst)
	}

	return nil
}

// CopyFile copies src to dst, syncs it and carries the mode over. Rename does
// not work across mount points, so artifacts are always copied.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()

	_, err = io.Copy(out, in)
	if err != nil {
		return
	}

	err = out.Sync()
	if err != nil {
		return
	}

	si, err := os.Stat(src)
	if err != nil {
		return
	}
	err = os.Chmod(dst, si.Mode())
	if err != nil {
		return
	}

	return
}
