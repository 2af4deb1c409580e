// Package daemon runs backups repeatedly according to a schedule.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

const (
	defaultTick    = time.Second
	defaultBackoff = 60 * time.Second
)

type TriggerFunc func(ctx context.Context) error

// Daemon is a single threaded sleep/wake loop: it sleeps until the next
// scheduled time, triggers one run and waits for it before scheduling the
// next one.
type Daemon struct {
	logger   logrus.FieldLogger
	schedule cron.Schedule
	clock    clock.Clock
	trigger  TriggerFunc

	tick    time.Duration
	backoff time.Duration
}

func New(logger logrus.FieldLogger, schedule cron.Schedule, clk clock.Clock, trigger TriggerFunc) *Daemon {
	if clk == nil {
		clk = clock.WallClock
	}

	return &Daemon{
		logger:   logger,
		schedule: schedule,
		clock:    clk,
		trigger:  trigger,

		tick:    defaultTick,
		backoff: defaultBackoff,
	}
}

// Run loops until ctx is cancelled and then returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Backup daemon started")
	defer d.logger.Info("Backup daemon stopped")

	for ctx.Err() == nil {
		if err := d.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}

			d.logger.WithError(err).WithField("backoff", d.backoff).Error("Daemon iteration failed")
			d.sleep(ctx, d.clock.Now().Add(d.backoff))
		}
	}

	return nil
}

func (d *Daemon) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("daemon iteration panicked: %v", r)
		}
	}()

	next := d.schedule.Next(d.clock.Now())
	if next.IsZero() {
		return errors.New("Schedule has no upcoming run")
	}

	d.logger.WithField("next_run", next.Format("2006-01-02 15:04:05")).Info("Next backup scheduled")

	if !d.sleep(ctx, next) {
		return nil
	}

	d.logger.Info("Scheduled backup triggered")

	if err := d.trigger(ctx); err != nil {
		d.logger.WithError(err).Error("Scheduled backup failed")
		return nil
	}

	d.logger.Info("Scheduled backup finished")

	return nil
}

// sleep waits until the clock reaches until, waking at least every tick. It
// returns false if ctx was cancelled first.
func (d *Daemon) sleep(ctx context.Context, until time.Time) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		remaining := until.Sub(d.clock.Now())
		if remaining <= 0 {
			return true
		}

		if remaining > d.tick {
			remaining = d.tick
		}

		select {
		case <-ctx.Done():
			return false
		case <-d.clock.After(remaining):
		}
	}
}
