// Package notify reports backup outcomes to operators.
package notify

import (
	"context"

	"go.uber.org/multierr"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Multi delivers every message to all notifiers, even when some of them fail.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var err error

	for _, n := range m {
		err = multierr.Append(err, n.Notify(ctx, message))
	}

	return err
}
