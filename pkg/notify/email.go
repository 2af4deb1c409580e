package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const emailSubject = "SecureVault backup report"

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

func (c EmailConfig) Empty() bool {
	return c.Host == "" && len(c.To) == 0
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends every message as a plain text mail.
type Email struct {
	config   EmailConfig
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmail(config EmailConfig) (*Email, error) {
	if config.Host == "" || len(config.To) == 0 {
		return nil, errors.New("email requires host and at least one recipient")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.From == "" {
		config.From = config.User
	}
	if config.From == "" {
		return nil, errors.New("email requires a sender address")
	}

	return &Email{
		config:   config,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (e *Email) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.config.User != "" {
		auth = smtp.PlainAuth("", e.config.User, e.config.Password, e.config.Host)
	}

	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))

	if err := e.sendMail(addr, auth, e.config.From, e.config.To, e.compose(message)); err != nil {
		return errors.Wrap(err, "Email notification failed")
	}

	return nil
}

func (e *Email) compose(message string) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.config.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", emailSubject))
	fmt.Fprintf(&buf, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(message, "\n", "\r\n"))
	buf.WriteString("\r\n")

	return buf.Bytes()
}
