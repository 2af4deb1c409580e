package backupfx

import (
	"strings"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/securevault/internal/configfx"
	"github.com/yurykabanov/securevault/internal/dockerfx"
	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/dump"
	"github.com/yurykabanov/securevault/pkg/mount"
	"github.com/yurykabanov/securevault/pkg/notify"
	"github.com/yurykabanov/securevault/pkg/transfer"
)

const (
	ConfigMountTempDirectory = "mount.temp_directory"
)

type MountManagerConfig struct {
	BaseDirectory string
}

func MountManagerConfigProvider(v *viper.Viper) *MountManagerConfig {
	return &MountManagerConfig{
		BaseDirectory: v.GetString(ConfigMountTempDirectory),
	}
}

func MountManager(config *MountManagerConfig) *mount.Manager {
	return mount.New(config.BaseDirectory)
}

// Dumper builds the dumper for the first configured database. Without
// databases the run skips the dump step.
func Dumper(
	logger *logrus.Logger,
	settings *configfx.Settings,
	dockerClient dockerfx.ClientFactory,
	mounts *mount.Manager,
) (backup.Dumper, error) {
	if len(settings.Databases) == 0 {
		return nil, nil
	}

	if len(settings.Databases) > 1 {
		logger.WithField("databases", len(settings.Databases)).
			Warn("Only the first configured database is dumped")
	}

	db := settings.Databases[0]

	switch strings.ToLower(db.Type) {
	case dump.TypeMySQL:
		return dump.NewMySQL(logger, db)
	case dump.TypePostgreSQL:
		return dump.NewPostgreSQL(logger, db)
	case dump.TypeDocker:
		client, err := dockerClient()
		if err != nil {
			return nil, err
		}
		return dump.NewDocker(logger, client, mounts, db)
	default:
		return nil, errors.Errorf("Unsupported database type %q", db.Type)
	}
}

func TransferManager(logger *logrus.Logger, settings *configfx.Settings) (*transfer.Manager, error) {
	targets := map[string]transfer.Target{}

	if dir := settings.Transfer.LocalDirectory; dir != "" {
		targets["local"] = transfer.NewLocal(dir)
	}

	if !settings.SFTP.Empty() {
		sftp, err := transfer.NewSFTP(logger, settings.SFTP)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid sftp configuration")
		}
		targets["sftp"] = sftp
	}

	return transfer.NewManager(logger, targets), nil
}

func Notifiers(logger *logrus.Logger, settings *configfx.Settings, clk clock.Clock) (notify.Multi, error) {
	var notifiers notify.Multi

	if !settings.Telegram.Empty() {
		tg, err := notify.NewTelegram(logger, settings.Telegram, clk)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid telegram configuration")
		}
		notifiers = append(notifiers, tg)
	}

	if !settings.Email.Empty() {
		email, err := notify.NewEmail(settings.Email)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid email configuration")
		}
		notifiers = append(notifiers, email)
	}

	return notifiers, nil
}
