package watchdog

import (
	"log"
	"os"
	"sync"
	"time"
)

// exit status used when the software watchdog kills a stalled process
const exitStalled = 3

// Software is an in-process watchdog. When it expires it calls onExpire,
// which by default exits the process so that the service manager starts a
// fresh one with all state reset.
type Software struct {
	mu       sync.Mutex
	timer    *time.Timer
	timeout  time.Duration
	onExpire func()
}

func NewSoftware(onExpire func()) *Software {
	if onExpire == nil {
		onExpire = func() {
			log.Printf("watchdog: control loop stalled, exiting for restart")
			os.Exit(exitStalled)
		}
	}
	return &Software{onExpire: onExpire}
}

func (s *Software) Arm(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timeout = timeout
	s.timer = time.AfterFunc(timeout, s.onExpire)
	return nil
}

func (s *Software) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return ErrNotArmed
	}
	s.timer.Reset(s.timeout)
	return nil
}

func (s *Software) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}
