package archive

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Verify re-reads the archive at path and walks every entry header, skipping
// payloads, until the end of the stream. It succeeds only if the whole gzip
// stream, trailer included, decodes cleanly.
func Verify(path string) (bool, error) {
	err := walk(path, func(*tar.Header) {})
	if err != nil {
		return false, err
	}

	return true, nil
}

// List returns the entry names stored in the archive at path.
func List(path string) ([]string, error) {
	var names []string

	err := walk(path, func(h *tar.Header) {
		names = append(names, h.Name)
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

func walk(path string, fn func(*tar.Header)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "Failed to open archive for verification: %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "Failed to open archive for verification: %s", path)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "Corrupted archive %s", path)
		}

		fn(h)
	}

	// tar stops at its end-of-archive blocks; drain the rest so a truncated
	// gzip trailer or checksum mismatch is noticed too.
	if _, err := io.Copy(ioutil.Discard, gz); err != nil {
		return errors.Wrapf(err, "Corrupted archive %s", path)
	}

	return nil
}
