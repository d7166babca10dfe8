package e25x

import (
	"log/slog"
	"time"
)

// Opts tune the busy-wait policy and logging. The zero policy spins on the
// STATUS register until WIP clears, without a bound.
type Opts struct {
	// BusyTimeout bounds a single wait for WIP to clear. Zero means no bound.
	BusyTimeout time.Duration
	// MaxPolls bounds the number of STATUS reads per wait. Zero means no bound.
	MaxPolls int
	// PollInterval is slept between STATUS reads.
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Opt func(*Opts)

func WithBusyTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.BusyTimeout = timeout
	}
}

func WithMaxPolls(n int) Opt {
	return func(o *Opts) {
		o.MaxPolls = n
	}
}

func WithPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = interval
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}
