package hal

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	triggerSettle = 2 * time.Microsecond
	triggerWidth  = 10 * time.Microsecond
)

type motorPins struct {
	forward  gpio.PinIO
	backward gpio.PinIO
	enable   gpio.PinIO
}

type boardPins struct {
	trigger gpio.PinIO
	echo    gpio.PinIO
	codes   [3]gpio.PinIO
	motors  map[Channel]motorPins
}

// Periph drives an HC-SR04 style ranger and L298N motor bridges through
// periph.io GPIO.
type Periph struct {
	trigger gpio.PinIO
	echo    gpio.PinIO
	codes   [3]gpio.PinIO
	motors  map[Channel]motorPins
	freq    physic.Frequency
}

func NewPeriph(cfg config.Config) (HAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	pins, err := lookupPins(cfg.Pins, gpioreg.ByName)
	if err != nil {
		return nil, err
	}
	p, err := newPeriph(pins, physic.Frequency(cfg.PWMFrequencyHz)*physic.Hertz)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func lookupPins(p config.PinConfig, byName func(string) gpio.PinIO) (boardPins, error) {
	var firstErr error
	get := func(name string) gpio.PinIO {
		pin := byName(name)
		if pin == nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %q", ErrUnknownPin, name)
		}
		return pin
	}
	pins := boardPins{
		trigger: get(p.Trigger),
		echo:    get(p.Echo),
		codes:   [3]gpio.PinIO{get(p.Code1), get(p.Code2), get(p.Code3)},
		motors: map[Channel]motorPins{
			Left:     {forward: get(p.LeftForward), backward: get(p.LeftBackward), enable: get(p.LeftEnable)},
			Right:    {forward: get(p.RightForward), backward: get(p.RightBackward), enable: get(p.RightEnable)},
			Conveyor: {forward: get(p.ConveyorForward), backward: get(p.ConveyorBackward), enable: get(p.ConveyorEnable)},
		},
	}
	return pins, firstErr
}

func newPeriph(pins boardPins, freq physic.Frequency) (*Periph, error) {
	p := &Periph{trigger: pins.trigger, echo: pins.echo, codes: pins.codes, motors: pins.motors, freq: freq}
	if err := p.trigger.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("trigger %s: %w", p.trigger, err)
	}
	if err := p.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("echo %s: %w", p.echo, err)
	}
	for _, c := range p.codes {
		if err := c.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("code input %s: %w", c, err)
		}
	}
	for _, ch := range []Channel{Left, Right, Conveyor} {
		if err := p.SetMotor(ch, Stopped, 0); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Periph) TriggerPulse() error {
	if err := p.trigger.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(triggerSettle)
	if err := p.trigger.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(triggerWidth)
	return p.trigger.Out(gpio.Low)
}

// MeasureEcho times the next complete high pulse on the echo pin. A pulse
// already in progress is let run out first. The timeout covers the whole
// measurement.
func (p *Periph) MeasureEcho(timeout time.Duration) (time.Duration, bool) {
	deadline := time.Now().Add(timeout)
	for p.echo.Read() == gpio.High {
		remaining := time.Until(deadline)
		if remaining <= 0 || !p.echo.WaitForEdge(remaining) {
			return 0, false
		}
	}
	for p.echo.Read() == gpio.Low {
		remaining := time.Until(deadline)
		if remaining <= 0 || !p.echo.WaitForEdge(remaining) {
			return 0, false
		}
	}
	start := time.Now()
	for p.echo.Read() == gpio.High {
		remaining := time.Until(deadline)
		if remaining <= 0 || !p.echo.WaitForEdge(remaining) {
			return 0, false
		}
	}
	return time.Since(start), true
}

func (p *Periph) ReadInput(n int) (bool, error) {
	if n < 1 || n > len(p.codes) {
		return false, fmt.Errorf("%w: %d", ErrUnknownInput, n)
	}
	return p.codes[n-1].Read() == gpio.High, nil
}

func (p *Periph) SetMotor(ch Channel, dir Direction, speed uint8) error {
	m, ok := p.motors[ch]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
	}
	fwd, back := gpio.Low, gpio.Low
	switch dir {
	case Forward:
		fwd = gpio.High
	case Backward:
		back = gpio.High
	}
	if err := m.forward.Out(fwd); err != nil {
		return fmt.Errorf("%s forward pin: %w", ch, err)
	}
	if err := m.backward.Out(back); err != nil {
		return fmt.Errorf("%s backward pin: %w", ch, err)
	}
	if speed == 0 {
		if err := m.enable.Out(gpio.Low); err != nil {
			return fmt.Errorf("%s enable pin: %w", ch, err)
		}
		return nil
	}
	if err := m.enable.PWM(dutyForSpeed(speed), p.freq); err != nil {
		return fmt.Errorf("%s enable pwm: %w", ch, err)
	}
	return nil
}

// Close stops every motor.
func (p *Periph) Close() error {
	var errs []error
	for _, ch := range []Channel{Left, Right, Conveyor} {
		errs = append(errs, p.SetMotor(ch, Stopped, 0))
	}
	return errors.Join(errs...)
}

// dutyForSpeed maps an 8-bit speed onto the full periph duty range.
func dutyForSpeed(speed uint8) gpio.Duty {
	return gpio.Duty(int64(speed) * int64(gpio.DutyMax) / 255)
}
