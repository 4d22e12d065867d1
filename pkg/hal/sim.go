package hal

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// speed of sound in cm per microsecond
const soundCmPerUs = 0.034

// Simulated is a board without hardware: the ranger reports random distances
// with occasional nearby objects and dropouts, and the code inputs wander
// through all eight codes.
type Simulated struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	distance  float64
	echo      bool
	code      uint8
	motors    map[Channel]MotorState
	logWrites bool
}

func NewSimulated(seed int64, logWrites bool) *Simulated {
	return &Simulated{
		rnd:       rand.New(rand.NewSource(seed)),
		motors:    make(map[Channel]MotorState),
		logWrites: logWrites,
	}
}

func (s *Simulated) TriggerPulse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := s.rnd.Float64(); {
	case r < 0.05:
		s.echo = false
	case r < 0.15:
		s.echo = true
		s.distance = 5 + s.rnd.Float64()*25
	default:
		s.echo = true
		s.distance = 50 + s.rnd.Float64()*250
	}
	return nil
}

func (s *Simulated) MeasureEcho(timeout time.Duration) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.echo {
		return 0, false
	}
	d := time.Duration(s.distance*2/soundCmPerUs) * time.Microsecond
	if d > timeout {
		return 0, false
	}
	return d, true
}

// ReadInput occasionally moves to a new code when input 1 is read, so all
// three bits of a sample come from the same code.
func (s *Simulated) ReadInput(n int) (bool, error) {
	if n < 1 || n > 3 {
		return false, ErrUnknownInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 1 && s.rnd.Intn(20) == 0 {
		s.code = uint8(s.rnd.Intn(8))
	}
	return s.code&(1<<(n-1)) != 0, nil
}

func (s *Simulated) SetMotor(ch Channel, dir Direction, speed uint8) error {
	if ch < Left || ch > Conveyor {
		return ErrUnknownChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motors[ch] = MotorState{Direction: dir, Speed: speed}
	if s.logWrites {
		log.Printf("sim motor %s: %s speed=%d", ch, dir, speed)
	}
	return nil
}

// Motor returns the last state written to ch.
func (s *Simulated) Motor(ch Channel) MotorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors[ch]
}

func (s *Simulated) Close() error { return nil }
