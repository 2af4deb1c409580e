package dump

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MySQL dumps every database of a MySQL server with mysqldump.
type MySQL struct {
	logger   logrus.FieldLogger
	user     string
	password string

	// Binary is the dump tool to run, mysqldump unless overridden.
	Binary string
}

func NewMySQL(logger logrus.FieldLogger, db Database) (*MySQL, error) {
	if db.User == "" {
		return nil, errors.Wrap(ErrInvalidCredentials, "mysql user is required")
	}

	return &MySQL{
		logger:   logger.WithField("database", TypeMySQL),
		user:     db.User,
		password: db.Password,
		Binary:   "mysqldump",
	}, nil
}

func (d *MySQL) Dump(ctx context.Context, prefix string) (string, error) {
	args := []string{"-u", d.user}
	if d.password != "" {
		args = append(args, "-p"+d.password)
	}
	args = append(args, "--all-databases")

	output := prefix + extension

	if err := streamCommand(ctx, d.logger, exec.CommandContext(ctx, d.Binary, args...), output); err != nil {
		return "", err
	}

	return output, nil
}

// PostgreSQL dumps a whole PostgreSQL cluster with pg_dumpall.
type PostgreSQL struct {
	logger   logrus.FieldLogger
	user     string
	password string
	host     string
	port     string

	// Binary is the dump tool to run, pg_dumpall unless overridden.
	Binary string
}

func NewPostgreSQL(logger logrus.FieldLogger, db Database) (*PostgreSQL, error) {
	if db.User == "" || db.Host == "" || db.Port == "" {
		return nil, errors.Wrap(ErrInvalidCredentials, "postgresql user, host and port are required")
	}

	return &PostgreSQL{
		logger:   logger.WithField("database", TypePostgreSQL),
		user:     db.User,
		password: db.Password,
		host:     db.Host,
		port:     db.Port,
		Binary:   "pg_dumpall",
	}, nil
}

func (d *PostgreSQL) Dump(ctx context.Context, prefix string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Binary, "-U", d.user, "-h", d.host, "-p", d.port)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+d.password)

	output := prefix + extension

	if err := streamCommand(ctx, d.logger, cmd, output); err != nil {
		return "", err
	}

	return output, nil
}
