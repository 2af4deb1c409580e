package backup

import (
	"github.com/pkg/errors"
)

// ErrInterrupted ends a run that observed cancellation. It is not a failure of
// the archive itself, but the run did not complete either.
var ErrInterrupted = errors.New("backup interrupted")

func IsInterrupted(err error) bool {
	return err != nil && errors.Cause(err) == ErrInterrupted
}
