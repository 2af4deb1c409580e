package dump

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

const (
	containerTarget = "/__backup__"
	dumpFileName    = "dump.sql"

	maxWaitErrors = 100
)

type MountManager interface {
	Allocate() (string, error)
	Deallocate(string) error
}

type dockerClient interface {
	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		containerName string,
	) (container.ContainerCreateCreatedBody, error)

	ContainerStart(
		ctx context.Context,
		containerID string,
		options types.ContainerStartOptions,
	) error

	ContainerWait(
		ctx context.Context,
		containerID string,
	) (int64, error)

	ContainerRemove(
		ctx context.Context,
		containerID string,
		options types.ContainerRemoveOptions,
	) error

	ImagePull(
		ctx context.Context,
		ref string,
		options types.ImagePullOptions,
	) (io.ReadCloser, error)
}

// Docker runs a dumper container with a scratch directory bind mounted at
// /__backup__. The container is expected to write dump.sql there.
type Docker struct {
	logger logrus.FieldLogger
	docker dockerClient
	mounts MountManager
	db     Database
}

func NewDocker(logger logrus.FieldLogger, docker dockerClient, mounts MountManager, db Database) (*Docker, error) {
	if db.Image == "" {
		return nil, errors.New("docker dumper requires an image")
	}
	if db.User == "" {
		return nil, errors.Wrap(ErrInvalidCredentials, "docker dumper user is required")
	}

	return &Docker{
		logger: logger.WithField("database", TypeDocker),
		docker: docker,
		mounts: mounts,
		db:     db,
	}, nil
}

func (d *Docker) Dump(ctx context.Context, prefix string) (string, error) {
	logger := appcontext.LoggerFromContext(d.logger, ctx)

	ref, err := reference.ParseNormalizedNamed(d.db.Image)
	if err != nil {
		return "", errors.Wrapf(err, "Invalid dumper image %s", d.db.Image)
	}

	if err := d.pullImage(ctx, ref); err != nil {
		return "", errors.Wrapf(err, "Unable to pull dumper image %s", ref.String())
	}

	dir, err := d.mounts.Allocate()
	if err != nil {
		return "", errors.Wrap(err, "Unable to allocate dump directory")
	}
	defer func() {
		if err := d.mounts.Deallocate(dir); err != nil {
			logger.WithError(err).WithField("directory", dir).Error("Unable to deallocate dump directory")
		}
	}()

	c, err := d.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image: ref.String(),
			Cmd:   d.db.Command,
			Env: []string{
				"BACKUP_TARGET_DIR=" + containerTarget,
				"DB_USER=" + d.db.User,
				"DB_PASSWORD=" + d.db.Password,
				"DB_HOST=" + d.db.Host,
				"DB_PORT=" + d.db.Port,
			},
		}, // container config
		&container.HostConfig{
			NetworkMode: "host",
			Mounts: []mount.Mount{
				{Type: mount.TypeBind, Source: dir, Target: containerTarget},
			},
		}, // host config
		&network.NetworkingConfig{}, // networking config
		d.containerName(prefix),
	)
	if err != nil {
		return "", errors.Wrap(err, "Unable to create dumper container")
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := d.docker.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			logger.WithError(err).Error("Unable to remove dumper container")
		}
	}()

	if err := d.docker.ContainerStart(ctx, c.ID, types.ContainerStartOptions{}); err != nil {
		return "", errors.Wrap(err, "Unable to start dumper container")
	}

	status, err := d.wait(ctx, c.ID)
	if err != nil {
		return "", err
	}
	if status != 0 {
		return "", errors.Errorf("Dumper container exited with status %d", status)
	}

	output := prefix + extension

	if err := compressFile(filepath.Join(dir, dumpFileName), output); err != nil {
		return "", err
	}

	return output, nil
}

func (d *Docker) wait(ctx context.Context, id string) (int64, error) {
	errCounter := 0

	for {
		status, err := d.docker.ContainerWait(ctx, id)
		if err == nil {
			return status, nil
		}

		if ctx.Err() != nil {
			return 0, errors.Wrap(ctx.Err(), "Dump cancelled")
		}

		errCounter++
		if errCounter > maxWaitErrors {
			return 0, errors.Wrap(err, "Unable to wait for dumper container")
		}
	}
}

func (d *Docker) pullImage(ctx context.Context, ref reference.Named) error {
	img, err := d.docker.ImagePull(
		ctx,
		ref.String(),
		types.ImagePullOptions{},
	)
	if err != nil {
		return err
	}
	defer img.Close()

	_, err = io.Copy(ioutil.Discard, img)
	if err != nil {
		return err
	}

	return nil
}

func (d *Docker) containerName(prefix string) string {
	return fmt.Sprintf("securevault-dump-%s", filepath.Base(prefix))
}
