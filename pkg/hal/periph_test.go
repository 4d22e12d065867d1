package hal

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

type testBoard struct {
	pins map[string]*gpiotest.Pin
	hw   *Periph
}

func newTestBoard(t *testing.T) *testBoard {
	t.Helper()
	pc := config.DefaultPins()
	names := []string{
		pc.Trigger, pc.Echo,
		pc.LeftForward, pc.LeftBackward, pc.LeftEnable,
		pc.RightForward, pc.RightBackward, pc.RightEnable,
		pc.ConveyorForward, pc.ConveyorBackward, pc.ConveyorEnable,
		pc.Code1, pc.Code2, pc.Code3,
	}
	pins := make(map[string]*gpiotest.Pin, len(names))
	for i, n := range names {
		pins[n] = &gpiotest.Pin{N: n, Num: i}
	}
	pins[pc.Echo].EdgesChan = make(chan gpio.Level, 4)

	bp, err := lookupPins(pc, func(name string) gpio.PinIO {
		p, ok := pins[name]
		if !ok {
			return nil
		}
		return p
	})
	if err != nil {
		t.Fatalf("lookupPins: %v", err)
	}
	hw, err := newPeriph(bp, physic.KiloHertz)
	if err != nil {
		t.Fatalf("newPeriph: %v", err)
	}
	return &testBoard{pins: pins, hw: hw}
}

func (b *testBoard) pin(name string) *gpiotest.Pin { return b.pins[name] }

func TestLookupPinsUnknown(t *testing.T) {
	pc := config.DefaultPins()
	_, err := lookupPins(pc, func(string) gpio.PinIO { return nil })
	if !errors.Is(err, ErrUnknownPin) {
		t.Fatalf("expected ErrUnknownPin, got %v", err)
	}
}

func TestSetMotorPins(t *testing.T) {
	b := newTestBoard(t)
	pc := config.DefaultPins()

	tests := []struct {
		ch        Channel
		dir       Direction
		speed     uint8
		fwd, back gpio.Level
		duty      gpio.Duty
	}{
		{Left, Forward, 255, gpio.High, gpio.Low, gpio.DutyMax},
		{Right, Backward, 255, gpio.Low, gpio.High, gpio.DutyMax},
		{Conveyor, Backward, 80, gpio.Low, gpio.High, dutyForSpeed(80)},
	}
	motorPinNames := map[Channel][3]string{
		Left:     {pc.LeftForward, pc.LeftBackward, pc.LeftEnable},
		Right:    {pc.RightForward, pc.RightBackward, pc.RightEnable},
		Conveyor: {pc.ConveyorForward, pc.ConveyorBackward, pc.ConveyorEnable},
	}
	for _, tt := range tests {
		if err := b.hw.SetMotor(tt.ch, tt.dir, tt.speed); err != nil {
			t.Fatalf("SetMotor(%s): %v", tt.ch, err)
		}
		n := motorPinNames[tt.ch]
		if got := b.pin(n[0]).Read(); got != tt.fwd {
			t.Fatalf("%s forward pin: got %v want %v", tt.ch, got, tt.fwd)
		}
		if got := b.pin(n[1]).Read(); got != tt.back {
			t.Fatalf("%s backward pin: got %v want %v", tt.ch, got, tt.back)
		}
		if got := b.pin(n[2]).D; got != tt.duty {
			t.Fatalf("%s duty: got %v want %v", tt.ch, got, tt.duty)
		}
	}

	// stopping clears both direction pins and drops the enable pin
	if err := b.hw.SetMotor(Left, Stopped, 0); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.pin(pc.LeftForward).Read() != gpio.Low || b.pin(pc.LeftBackward).Read() != gpio.Low {
		t.Fatalf("left direction pins not cleared")
	}
	if b.pin(pc.LeftEnable).Read() != gpio.Low {
		t.Fatalf("left enable pin still high")
	}

	if err := b.hw.SetMotor(Channel(7), Forward, 10); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDutyForSpeed(t *testing.T) {
	if dutyForSpeed(0) != 0 {
		t.Fatalf("speed 0 should be zero duty")
	}
	if dutyForSpeed(255) != gpio.DutyMax {
		t.Fatalf("speed 255 should be full duty, got %v", dutyForSpeed(255))
	}
	if d := dutyForSpeed(128); d < gpio.DutyHalf-gpio.DutyMax/255 || d > gpio.DutyHalf+gpio.DutyMax/255 {
		t.Fatalf("speed 128 should be about half duty, got %v", d)
	}
}

func TestReadInput(t *testing.T) {
	b := newTestBoard(t)
	pc := config.DefaultPins()
	b.pin(pc.Code1).L = gpio.High
	b.pin(pc.Code3).L = gpio.High

	want := []bool{true, false, true}
	for i, w := range want {
		got, err := b.hw.ReadInput(i + 1)
		if err != nil {
			t.Fatalf("ReadInput(%d): %v", i+1, err)
		}
		if got != w {
			t.Fatalf("ReadInput(%d) = %v; want %v", i+1, got, w)
		}
	}
	if _, err := b.hw.ReadInput(4); !errors.Is(err, ErrUnknownInput) {
		t.Fatalf("expected ErrUnknownInput, got %v", err)
	}
}

func TestTriggerPulseEndsLow(t *testing.T) {
	b := newTestBoard(t)
	if err := b.hw.TriggerPulse(); err != nil {
		t.Fatalf("TriggerPulse: %v", err)
	}
	if b.pin(config.DefaultPins().Trigger).Read() != gpio.Low {
		t.Fatalf("trigger left high")
	}
}

func TestMeasureEcho(t *testing.T) {
	b := newTestBoard(t)
	echo := b.pin(config.DefaultPins().Echo)

	echo.EdgesChan <- gpio.High
	echo.EdgesChan <- gpio.Low
	d, ok := b.hw.MeasureEcho(50 * time.Millisecond)
	if !ok {
		t.Fatalf("expected an echo")
	}
	if d < 0 || d > 50*time.Millisecond {
		t.Fatalf("echo duration out of range: %v", d)
	}
}

func TestMeasureEchoTimeout(t *testing.T) {
	b := newTestBoard(t)
	start := time.Now()
	if _, ok := b.hw.MeasureEcho(5 * time.Millisecond); ok {
		t.Fatalf("expected timeout without edges")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not bounded")
	}

	// a pulse that never ends is also a timeout
	b.pin(config.DefaultPins().Echo).EdgesChan <- gpio.High
	if _, ok := b.hw.MeasureEcho(5 * time.Millisecond); ok {
		t.Fatalf("expected timeout for unterminated pulse")
	}
}

func TestMeasureEchoSkipsPulseInProgress(t *testing.T) {
	b := newTestBoard(t)
	echo := b.pin(config.DefaultPins().Echo)

	// the tail of an earlier pulse alone is not a reading
	echo.L = gpio.High
	echo.EdgesChan <- gpio.Low
	if d, ok := b.hw.MeasureEcho(5 * time.Millisecond); ok {
		t.Fatalf("stale pulse tail measured as %v", d)
	}

	echo.L = gpio.High
	echo.EdgesChan <- gpio.Low
	echo.EdgesChan <- gpio.High
	echo.EdgesChan <- gpio.Low
	if _, ok := b.hw.MeasureEcho(50 * time.Millisecond); !ok {
		t.Fatalf("expected the pulse after the stale tail to be measured")
	}
	if echo.Read() != gpio.Low {
		t.Fatalf("echo should end low")
	}
}

func TestCloseStopsMotors(t *testing.T) {
	b := newTestBoard(t)
	pc := config.DefaultPins()
	if err := b.hw.SetMotor(Conveyor, Backward, 80); err != nil {
		t.Fatalf("SetMotor: %v", err)
	}
	if err := b.hw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.pin(pc.ConveyorBackward).Read() != gpio.Low || b.pin(pc.ConveyorEnable).Read() != gpio.Low {
		t.Fatalf("conveyor not stopped on close")
	}
}
