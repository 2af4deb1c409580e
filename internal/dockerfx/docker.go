package dockerfx

import (
	"context"
	"sync"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	ConfigDockerHost    = "docker.host"
	ConfigDockerVersion = "docker.version"
)

type DockerConnectionConfig struct {
	Host    string
	Version string
}

func DockerConnectionConfigProvider(v *viper.Viper) (*DockerConnectionConfig, error) {
	return &DockerConnectionConfig{
		Host:    v.GetString(ConfigDockerHost),
		Version: v.GetString(ConfigDockerVersion),
	}, nil
}

// ClientFactory connects to docker on first use, so hosts without a docker
// dumper never need a daemon.
type ClientFactory func() (*docker.Client, error)

func DockerClientFactory(lc fx.Lifecycle, config *DockerConnectionConfig, logger *logrus.Logger) ClientFactory {
	var (
		once   sync.Once
		client *docker.Client
		err    error
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close()
		},
	})

	return func() (*docker.Client, error) {
		once.Do(func() {
			client, err = DockerClient(config, logger)
		})
		return client, err
	}
}

func DockerClient(config *DockerConnectionConfig, logger *logrus.Logger) (*docker.Client, error) {
	logger.WithField("host", config.Host).Debug("Connecting to docker via")

	client, err := docker.NewClient(config.Host, config.Version, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create docker client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "Unable to ping docker")
	}

	return client, nil
}
