// Package mount hands out scratch directories that dumper containers write
// their output into.
package mount

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

type Manager struct {
	base string
}

func New(base string) *Manager {
	return &Manager{
		base: base,
	}
}

func (m *Manager) Base() string {
	return m.base
}

// Allocate creates a fresh directory below the base directory. The base is
// created on demand.
func (m *Manager) Allocate() (string, error) {
	if err := os.MkdirAll(m.base, 0755); err != nil {
		return "", errors.Wrapf(err, "Unable to create mount base %s", m.base)
	}

	dir, err := ioutil.TempDir(m.base, "dump-")
	if err != nil {
		return "", errors.Wrap(err, "Unable to allocate mount directory")
	}

	// the dumper container may run as a different user
	if err := os.Chmod(dir, 0777); err != nil {
		os.RemoveAll(dir)
		return "", errors.Wrap(err, "Unable to open up mount directory")
	}

	return dir, nil
}

func (m *Manager) Deallocate(dir string) error {
	return os.RemoveAll(dir)
}
