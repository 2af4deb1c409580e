package configfx

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

func defaultBackupDirs(goos string) []string {
	switch goos {
	case "windows":
		return []string{
			"C:/inetpub/wwwroot/",
			"C:/Program Files/Apache Group/Apache2/conf/",
			"C:/Program Files/Apache Group/Apache2/logs/",
			"C:/nginx/conf/",
			"C:/nginx/logs/",
			"C:/Program Files/PostgreSQL/data/",
			"C:/Program Files/PostgreSQL/logs/",
			"C:/Users/Administrator/",
			"C:/Windows/System32/config/systemprofile/",
		}
	case "darwin":
		return []string{
			"/Library/WebServer/Documents/",
			"/etc/apache2/",
			"/var/log/apache2/",
			"/usr/local/etc/nginx/",
			"/usr/local/var/log/nginx/",
			"/Library/PostgreSQL/data/",
			"/Library/PostgreSQL/logs/",
			"/Users/root/",
			"/etc/launchd/",
		}
	default:
		return []string{
			"/var/www/",
			"/etc/apache2/",
			"/var/log/apache2/",
			"/etc/nginx/",
			"/var/log/nginx/",
			"/etc/postgresql/",
			"/var/log/postgresql/",
			"/home/root/",
			"/etc/systemd/system/",
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ConfigBackupBase, "./backups/")
	v.SetDefault(ConfigBackupDirs, defaultBackupDirs(runtime.GOOS))
	v.SetDefault(ConfigRetentionDays, 7)
	v.SetDefault(ConfigWorkers, 0)

	v.SetDefault("schedule.type", "daily")
	v.SetDefault("schedule.time", "15:25:00")
	v.SetDefault("schedule.day_of_week", "monday")
	v.SetDefault("schedule.day_of_month", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "line")
	v.SetDefault("log.max_size_mb", 100)

	v.SetDefault("server.timeout.read", 10*time.Second)
	v.SetDefault("server.timeout.write", 10*time.Second)

	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.version", "1.25")

	v.SetDefault("mount.temp_directory", filepath.Join(os.TempDir(), "securevault"))
}
