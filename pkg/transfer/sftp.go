package transfer

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const dialTimeout = 30 * time.Second

type SFTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	KeyFile    string `mapstructure:"key_file"`
	KnownHosts string `mapstructure:"known_hosts"`
	RemoteDir  string `mapstructure:"remote_dir"`
}

func (c SFTPConfig) Empty() bool {
	return c.Host == ""
}

func (c SFTPConfig) address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type session struct {
	client *sftp.Client
	closer io.Closer
}

func (s *session) Close() error {
	return multierr.Combine(s.client.Close(), s.closer.Close())
}

type dialFunc func(ctx context.Context) (*session, error)

// SFTP uploads artifacts to <remote_dir>/<base of remoteDir>/ on an SSH
// server. Every transfer uses its own connection.
type SFTP struct {
	logger    logrus.FieldLogger
	remoteDir string
	dial      dialFunc
}

func NewSFTP(logger logrus.FieldLogger, config SFTPConfig) (*SFTP, error) {
	clientConfig, err := sshClientConfig(logger, config)
	if err != nil {
		return nil, err
	}

	addr := config.address()

	return &SFTP{
		logger:    logger.WithField("target", "sftp"),
		remoteDir: config.RemoteDir,
		dial: func(ctx context.Context) (*session, error) {
			return dialSSH(ctx, addr, clientConfig)
		},
	}, nil
}

func sshClientConfig(logger logrus.FieldLogger, config SFTPConfig) (*ssh.ClientConfig, error) {
	if config.User == "" {
		return nil, errors.New("sftp user is required")
	}

	var auth []ssh.AuthMethod

	if config.KeyFile != "" {
		key, err := ioutil.ReadFile(config.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to read sftp key file %s", config.KeyFile)
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to parse sftp key file %s", config.KeyFile)
		}

		auth = append(auth, ssh.PublicKeys(signer))
	}

	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}

	if len(auth) == 0 {
		return nil, errors.New("sftp requires a password or a key file")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHosts != "" {
		cb, err := knownhosts.New(config.KnownHosts)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to load known hosts %s", config.KnownHosts)
		}
		hostKeyCallback = cb
	} else {
		logger.WithField("host", config.Host).Warn("SFTP host key is not verified, set sftp.known_hosts")
	}

	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}, nil
}

func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*session, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to connect to %s", addr)
	}

	// NewClientConn closes conn on error
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, errors.Wrapf(err, "SSH handshake with %s failed", addr)
	}

	client := ssh.NewClient(c, chans, reqs)

	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "Unable to start sftp session")
	}

	return &session{client: sc, closer: client}, nil
}

func (s *SFTP) Transfer(ctx context.Context, localFile, remoteDir string) (err error) {
	sess, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		multierr.AppendInto(&err, sess.Close())
	}()

	// closing the session unblocks a stuck upload
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sess.client.Close()
		case <-stop:
		}
	}()

	dir := path.Join(s.remoteDir, filepath.Base(remoteDir))
	target := path.Join(dir, filepath.Base(localFile))

	if err := sess.client.MkdirAll(dir); err != nil {
		return errors.Wrapf(err, "Unable to create remote directory %s", dir)
	}

	in, err := os.Open(localFile)
	if err != nil {
		return errors.Wrapf(err, "Unable to open %s", localFile)
	}
	defer in.Close()

	out, err := sess.client.Create(target)
	if err != nil {
		return errors.Wrapf(err, "Unable to create remote file %s", target)
	}

	n, err := out.ReadFrom(in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "Upload cancelled")
		}
		return errors.Wrapf(err, "Unable to upload %s", target)
	}

	s.logger.WithFields(logrus.Fields{
		"file":   target,
		"length": n,
	}).Info("Uploaded file")

	return nil
}
