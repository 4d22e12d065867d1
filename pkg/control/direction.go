package control

import (
	"fmt"
	"log"

	"github.com/ericogr/conveyor-rover/pkg/hal"
)

// Code is the 3-bit direction code, input 3 being the most significant bit.
type Code uint8

// CodeUnset is outside the 3-bit range so the first sample always differs.
const CodeUnset Code = 0xFF

const (
	CodeStop     Code = 0b000
	CodeForward  Code = 0b001
	CodeBackward Code = 0b010
	CodeLeft     Code = 0b011
	CodeRight    Code = 0b100
)

func (c Code) String() string {
	if c == CodeUnset {
		return "unset"
	}
	return fmt.Sprintf("%03b", uint8(c))
}

type Action string

const (
	ActionNone     Action = ""
	ActionStop     Action = "STOP"
	ActionForward  Action = "FORWARD"
	ActionBackward Action = "BACKWARD"
	ActionLeft     Action = "LEFT"
	ActionRight    Action = "RIGHT"
)

// ActionFor maps a code to its drive action. Codes 101, 110 and 111 have no
// action.
func ActionFor(c Code) Action {
	switch c {
	case CodeStop:
		return ActionStop
	case CodeForward:
		return ActionForward
	case CodeBackward:
		return ActionBackward
	case CodeLeft:
		return ActionLeft
	case CodeRight:
		return ActionRight
	}
	return ActionNone
}

// wheels gives the left and right motor directions for each action. Turns
// spin the wheels in opposite directions at the same speed.
var wheels = map[Action][2]hal.Direction{
	ActionStop:     {hal.Stopped, hal.Stopped},
	ActionForward:  {hal.Forward, hal.Forward},
	ActionBackward: {hal.Backward, hal.Backward},
	ActionLeft:     {hal.Backward, hal.Forward},
	ActionRight:    {hal.Forward, hal.Backward},
}

// DirectionStateMachine turns the sampled code into drive motor commands,
// acting only when the code changes.
type DirectionStateMachine struct {
	inputs hal.InputReader
	motors hal.MotorDriver
	notify Notifier
	clock  hal.Clock

	speed  uint8
	last   Code
	action Action
}

func (m *DirectionStateMachine) Sample() Code {
	var c Code
	for n := 1; n <= 3; n++ {
		on, err := m.inputs.ReadInput(n)
		if err != nil {
			log.Printf("read code input %d: %v", n, err)
			continue
		}
		if on {
			c |= 1 << (n - 1)
		}
	}
	return c
}

// Observe dispatches c if it differs from the last dispatched code and
// reports whether it did.
func (m *DirectionStateMachine) Observe(c Code) (Action, bool) {
	if c == m.last {
		return ActionNone, false
	}
	m.last = c
	return m.dispatch(c), true
}

func (m *DirectionStateMachine) dispatch(c Code) Action {
	action := ActionFor(c)
	dirs, ok := wheels[action]
	if !ok {
		return ActionNone
	}
	var speed uint8
	if action != ActionStop {
		speed = m.speed
	}
	if err := m.motors.SetMotor(hal.Left, dirs[0], speed); err != nil {
		log.Printf("left motor: %v", err)
	}
	if err := m.motors.SetMotor(hal.Right, dirs[1], speed); err != nil {
		log.Printf("right motor: %v", err)
	}
	m.action = action
	m.notify.Notify(Event{Kind: EventDrive, Action: action, Code: c.String(), Timestamp: m.clock.Now()})
	return action
}

// Last is the most recently dispatched code.
func (m *DirectionStateMachine) Last() Code { return m.last }

// Action is the drive action currently applied to the wheels.
func (m *DirectionStateMachine) Action() Action { return m.action }

func (m *DirectionStateMachine) reset() {
	m.last = CodeUnset
	m.action = ActionNone
}
