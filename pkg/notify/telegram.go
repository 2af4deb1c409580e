package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	telegramAPI = "https://api.telegram.org"

	sendAttempts = 3
	sendDelay    = 2 * time.Second
)

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatId   string `mapstructure:"chat_id"`
}

func (c TelegramConfig) Empty() bool {
	return c.BotToken == "" && c.ChatId == ""
}

// Telegram posts messages to a chat through the Bot API.
type Telegram struct {
	logger logrus.FieldLogger
	config TelegramConfig
	client *http.Client
	clock  clock.Clock

	baseURL string
	delay   time.Duration
}

func NewTelegram(logger logrus.FieldLogger, config TelegramConfig, clk clock.Clock) (*Telegram, error) {
	if config.BotToken == "" || config.ChatId == "" {
		return nil, errors.New("telegram requires bot_token and chat_id")
	}
	if clk == nil {
		clk = clock.WallClock
	}

	return &Telegram{
		logger:  logger.WithField("notifier", "telegram"),
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		clock:   clk,
		baseURL: telegramAPI,
		delay:   sendDelay,
	}, nil
}

// apiError is a rejection by the Bot API itself; sending again will not help.
type apiError struct {
	status      int
	description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram rejected message (%d): %s", e.status, e.description)
}

type telegramResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return t.send(ctx, message)
		},
		IsFatalError: func(err error) bool {
			_, ok := errors.Cause(err).(*apiError)
			return ok || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			t.logger.WithError(err).WithField("attempt", attempt).Debug("Telegram notification failed")
		},
		Attempts: sendAttempts,
		Delay:    t.delay,
		Clock:    t.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return errors.Wrap(retry.LastError(err), "Telegram notification failed")
	}

	return nil
}

func (t *Telegram) send(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("chat_id", t.config.ChatId)
	form.Set("text", message)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.config.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		if uerr, ok := err.(*url.Error); ok {
			return uerr.Err
		}
		return err
	}
	defer resp.Body.Close()

	var body telegramResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK && decodeErr == nil && body.Ok:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Errorf("telegram responded with status %d", resp.StatusCode)
	case decodeErr != nil:
		return errors.Wrapf(decodeErr, "unexpected telegram response (status %d)", resp.StatusCode)
	default:
		return &apiError{status: resp.StatusCode, description: body.Description}
	}
}
