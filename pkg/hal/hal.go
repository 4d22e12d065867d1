// Package hal is the hardware abstraction the controller drives: an
// ultrasonic ranger, three digital code inputs and three H-bridge motor
// channels. The periph implementation talks to real GPIO; the simulated one
// lets the controller run on a workstation.
package hal

import (
	"errors"
	"time"
)

// Channel identifies one H-bridge motor output.
type Channel int

const (
	Left Channel = iota
	Right
	Conveyor
)

func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	case Conveyor:
		return "conveyor"
	}
	return "unknown"
}

// Direction is the state of an H-bridge's two direction pins.
type Direction int

const (
	Stopped Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Stopped:
		return "stopped"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return "unknown"
}

var (
	ErrUnknownPin     = errors.New("unknown pin")
	ErrUnknownChannel = errors.New("unknown motor channel")
	ErrUnknownInput   = errors.New("unknown code input")
)

// Ranger is an ultrasonic trigger/echo distance sensor.
type Ranger interface {
	// TriggerPulse emits the short trigger pulse that starts a measurement.
	TriggerPulse() error
	// MeasureEcho blocks until the echo pulse has been timed or timeout
	// elapses. ok is false when no echo was seen.
	MeasureEcho(timeout time.Duration) (d time.Duration, ok bool)
}

// InputReader samples the discrete code inputs, numbered 1 to 3.
type InputReader interface {
	ReadInput(n int) (bool, error)
}

// MotorDriver sets the direction and speed (0-255) of a motor channel.
type MotorDriver interface {
	SetMotor(ch Channel, dir Direction, speed uint8) error
}

// HAL bundles everything the controller needs from the board.
type HAL interface {
	Ranger
	InputReader
	MotorDriver
	Close() error
}

// Clock is the controller's time source.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// MotorState is the last command written to a motor channel.
type MotorState struct {
	Direction Direction
	Speed     uint8
}
