package telemetry

import (
	"time"

	"codeberg.org/mutker/cpubench/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644

	DefaultInterval     = time.Second
	DefaultTestInterval = 500 * time.Millisecond
	DefaultHistorySize  = 1000
)

type Config struct {
	Interval    time.Duration
	HistorySize int
}

func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		HistorySize: DefaultHistorySize,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Interval <= 0 {
		return errFactory.WithData(ErrInvalidInterval, c.Interval.String())
	}
	if c.HistorySize <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "history size must be positive")
	}
	return nil
}
