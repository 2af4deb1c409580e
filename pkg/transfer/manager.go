// Package transfer hands finished backup artifacts over to their off-host
// destinations.
package transfer

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

var (
	ErrNoTargets = errors.New("no transfer targets configured")
)

type Target interface {
	Transfer(ctx context.Context, localFile, remoteDir string) error
}

// Manager fans one artifact out to every configured target. A failing target
// does not keep the artifact from the others.
type Manager struct {
	logger  logrus.FieldLogger
	targets map[string]Target
	names   []string
}

func NewManager(logger logrus.FieldLogger, targets map[string]Target) *Manager {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Manager{
		logger:  logger,
		targets: targets,
		names:   names,
	}
}

func (m *Manager) Empty() bool {
	return len(m.targets) == 0
}

func (m *Manager) Transfer(ctx context.Context, localFile, remoteDir string) error {
	if m.Empty() {
		return ErrNoTargets
	}

	logger := appcontext.LoggerFromContext(m.logger, ctx).WithField("file", localFile)

	var err error

	for _, name := range m.names {
		if terr := m.targets[name].Transfer(ctx, localFile, remoteDir); terr != nil {
			logger.WithError(terr).WithField("target", name).Error("Transfer failed")
			err = multierr.Append(err, errors.Wrapf(terr, "%s", name))
			continue
		}

		logger.WithField("target", name).Info("Transfer finished")
	}

	return err
}
