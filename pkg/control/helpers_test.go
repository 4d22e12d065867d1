package control

import (
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"github.com/ericogr/conveyor-rover/pkg/hal"
)

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

type motorWrite struct {
	ch    hal.Channel
	dir   hal.Direction
	speed uint8
}

type fakeBoard struct {
	echoes     []time.Duration
	triggerErr error
	inputErrs  map[int]error
	codes      []Code
	code       Code
	writes     []motorWrite
	state      map[hal.Channel]hal.MotorState
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{state: make(map[hal.Channel]hal.MotorState)}
}

// echoFor is the echo pulse a ranger would report for an object cm away.
func echoFor(cm float64) time.Duration {
	return time.Duration(cm*2/cmPerMicrosecond) * time.Microsecond
}

func (b *fakeBoard) queueDistances(cms ...float64) {
	for _, cm := range cms {
		b.echoes = append(b.echoes, echoFor(cm))
	}
}

func (b *fakeBoard) TriggerPulse() error { return b.triggerErr }

func (b *fakeBoard) MeasureEcho(time.Duration) (time.Duration, bool) {
	if len(b.echoes) == 0 {
		return 0, false
	}
	d := b.echoes[0]
	b.echoes = b.echoes[1:]
	return d, d > 0
}

// ReadInput moves to the next queued code whenever input 1 is read.
func (b *fakeBoard) ReadInput(n int) (bool, error) {
	if n == 1 && len(b.codes) > 0 {
		b.code = b.codes[0]
		b.codes = b.codes[1:]
	}
	if err := b.inputErrs[n]; err != nil {
		return true, err
	}
	return b.code&(1<<(n-1)) != 0, nil
}

func (b *fakeBoard) SetMotor(ch hal.Channel, dir hal.Direction, speed uint8) error {
	b.writes = append(b.writes, motorWrite{ch: ch, dir: dir, speed: speed})
	b.state[ch] = hal.MotorState{Direction: dir, Speed: speed}
	return nil
}

func (b *fakeBoard) writesTo(ch hal.Channel) int {
	n := 0
	for _, w := range b.writes {
		if w.ch == ch {
			n++
		}
	}
	return n
}

type fakeClock struct {
	now     time.Time
	onSleep func()
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep()
	}
}

type fakeGuard struct {
	armed  time.Duration
	resets int
	armErr error
}

func (g *fakeGuard) Arm(d time.Duration) error {
	g.armed = d
	return g.armErr
}

func (g *fakeGuard) Reset() error {
	g.resets++
	return nil
}

func (g *fakeGuard) Close() error { return nil }

type recorder struct {
	events []Event
}

func (r *recorder) Notify(e Event) { r.events = append(r.events, e) }

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.HardwareType = config.HardwareSimulation
	return cfg
}
