package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/agisilaos/farewatch/internal/model"
)

const maxAttempts = 2

// Dispatcher fans an alert out to every channel. Each channel gets one
// immediate retry; failures never stop the remaining channels.
type Dispatcher struct {
	Channels []Channel
	Logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{Channels: channels, Logger: logger}
}

// Dispatch returns a joined error wrapping ErrNotification for every channel
// that failed both attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) error {
	var errs []error
	for _, ch := range d.Channels {
		if err := d.send(ctx, ch, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, alert model.Alert) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = ch.Send(ctx, alert); err == nil {
			d.logger().Debug("notification sent", "channel", ch.Name(), "route", alert.Route, "attempt", attempt)
			return nil
		}
		d.logger().Debug("notification attempt failed", "channel", ch.Name(), "attempt", attempt, "err", err)
	}
	d.logger().Warn("notification dropped", "channel", ch.Name(), "route", alert.Route, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrNotification, ch.Name(), err)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Logger
}

// Close releases channels that hold connections.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, ch := range d.Channels {
		if c, ok := ch.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
