// Package watchdog provides liveness guards for the control loop. A guard is
// armed once and must be reset before its timeout elapses; otherwise the
// board (device guard) or the process (software guard) is restarted.
package watchdog

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
)

var (
	ErrNotArmed    = errors.New("watchdog not armed")
	ErrUnsupported = errors.New("hardware watchdog not supported on this platform")
)

type Guard interface {
	Arm(timeout time.Duration) error
	Reset() error
	Close() error
}

// New builds the guard selected by cfg. Arm is left to the caller.
func New(cfg config.WatchdogConfig) (Guard, error) {
	switch cfg.Type {
	case config.WatchdogDevice:
		d, err := OpenDevice(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("open watchdog %s: %w", cfg.Device, err)
		}
		return d, nil
	case config.WatchdogSoftware:
		return NewSoftware(nil), nil
	case config.WatchdogNone, "":
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unknown watchdog type %q", cfg.Type)
}

// Noop never expires.
type Noop struct{}

func (Noop) Arm(time.Duration) error { return nil }
func (Noop) Reset() error            { return nil }
func (Noop) Close() error            { return nil }
