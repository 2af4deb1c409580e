package configfx

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/dump"
	"github.com/yurykabanov/securevault/pkg/notify"
	"github.com/yurykabanov/securevault/pkg/schedule"
	"github.com/yurykabanov/securevault/pkg/transfer"
)

const (
	ConfigBackupBase        = "backup_base"
	ConfigBackupDirs        = "backup_dirs"
	ConfigExcludeExtensions = "exclude_extensions"
	ConfigRetentionDays     = "retention_days"
	ConfigWorkers           = "workers"
	ConfigOwner             = "owner"

	configLegacyMySQLUser     = "mysql_user"
	configLegacyMySQLPassword = "mysql_password"
)

// ErrUsage is returned when the command line does not name a backup type.
var ErrUsage = errors.New("backup type is required")

type TransferSettings struct {
	LocalDirectory string `mapstructure:"local_directory"`
}

// Settings is the typed view of the configuration file and environment.
type Settings struct {
	BackupBase        string   `mapstructure:"backup_base"`
	BackupDirs        []string `mapstructure:"backup_dirs"`
	ExcludeExtensions []string `mapstructure:"exclude_extensions"`
	RetentionDays     int      `mapstructure:"retention_days"`
	Workers           int      `mapstructure:"workers"`
	Owner             string   `mapstructure:"owner"`

	Databases []dump.Database `mapstructure:"databases"`

	SFTP     transfer.SFTPConfig   `mapstructure:"sftp"`
	Transfer TransferSettings      `mapstructure:"transfer"`
	Telegram notify.TelegramConfig `mapstructure:"telegram"`
	Email    notify.EmailConfig    `mapstructure:"email"`
	Schedule schedule.Spec         `mapstructure:"schedule"`
}

func (s *Settings) BackupConfig() backup.Config {
	return backup.Config{
		BaseDir:       s.BackupBase,
		Dirs:          s.BackupDirs,
		RetentionDays: s.RetentionDays,
		Owner:         s.Owner,
	}
}

func SettingsProvider(v *viper.Viper) (*Settings, error) {
	var settings Settings

	if err := v.Unmarshal(&settings); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal settings")
	}

	if len(settings.BackupDirs) == 0 {
		settings.BackupDirs = v.GetStringSlice(ConfigBackupDirs)
	}

	// configs written before databases[] only carried mysql credentials
	if len(settings.Databases) == 0 && v.IsSet(configLegacyMySQLUser) {
		settings.Databases = []dump.Database{{
			Type:     dump.TypeMySQL,
			User:     v.GetString(configLegacyMySQLUser),
			Password: v.GetString(configLegacyMySQLPassword),
			Host:     "localhost",
			Port:     "3306",
		}}
	}

	return &settings, nil
}

// Command is what the process was asked to do.
type Command struct {
	BackupType string
	Full       bool
	Daemon     bool
}

func CommandProvider(flagSet *pflag.FlagSet, settings *Settings) (*Command, error) {
	full, err := flagSet.GetBool(FlagFull)
	if err != nil {
		return nil, err
	}

	daemon, err := flagSet.GetBool(FlagDaemon)
	if err != nil {
		return nil, err
	}

	cmd := &Command{
		BackupType: flagSet.Arg(0),
		Full:       full,
		Daemon:     daemon,
	}

	if cmd.BackupType == "" && cmd.Daemon {
		cmd.BackupType = strings.ToLower(string(settings.Schedule.Type))
		if !backup.ValidType(cmd.BackupType) {
			return nil, errors.Errorf(
				"schedule type %q is not a backup type, pass daily, monthly or yearly explicitly",
				cmd.BackupType,
			)
		}
	}

	if cmd.BackupType == "" {
		return nil, ErrUsage
	}

	return cmd, nil
}
