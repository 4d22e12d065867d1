// Package control holds the rover's decision logic: a proximity-triggered
// conveyor timer and an edge-triggered drive state machine, run in sequence
// from a single polling loop.
package control

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"github.com/ericogr/conveyor-rover/pkg/hal"
	"github.com/ericogr/conveyor-rover/pkg/watchdog"
)

// Board is the hardware the controller needs.
type Board interface {
	hal.Ranger
	hal.InputReader
	hal.MotorDriver
}

type Controller struct {
	Distance  *DistanceMonitor
	Direction *DirectionStateMachine

	motors       hal.MotorDriver
	clock        hal.Clock
	guard        watchdog.Guard
	policy       string
	guardTimeout time.Duration
	cycle        time.Duration
	startup      time.Duration
}

func New(cfg config.Config, board Board, clock hal.Clock, guard watchdog.Guard, notify Notifier) *Controller {
	notify = orDiscard(notify)
	if guard == nil {
		guard = watchdog.Noop{}
	}
	c := &Controller{
		Distance: &DistanceMonitor{
			ranger:      board,
			motors:      board,
			notify:      notify,
			threshold:   Distance(cfg.ThresholdCm),
			noEcho:      Distance(cfg.NoEchoCm),
			echoTimeout: time.Duration(cfg.EchoTimeoutUs) * time.Microsecond,
			runFor:      time.Duration(cfg.ConveyorRunMs) * time.Millisecond,
			speed:       uint8(cfg.ConveyorSpeed),
		},
		Direction: &DirectionStateMachine{
			inputs: board,
			motors: board,
			notify: notify,
			clock:  clock,
			speed:  uint8(cfg.DriveSpeed),
		},
		motors:       board,
		clock:        clock,
		guard:        guard,
		policy:       cfg.Watchdog.Policy,
		guardTimeout: time.Duration(cfg.Watchdog.TimeoutMs) * time.Millisecond,
		cycle:        time.Duration(cfg.CycleMs) * time.Millisecond,
		startup:      time.Duration(cfg.StartupMs) * time.Millisecond,
	}
	c.Direction.reset()
	return c
}

// Cycle runs one pass of the control loop: distance, conveyor, direction,
// then the watchdog.
func (c *Controller) Cycle() {
	d := c.Distance.Sample()
	triggered := c.Distance.Update(c.clock.Now(), d)

	code := c.Direction.Sample()
	_, dispatched := c.Direction.Observe(code)

	c.pet(triggered || dispatched)
}

func (c *Controller) pet(activity bool) {
	if c.policy == config.PolicyActivity && !activity {
		return
	}
	if err := c.guard.Reset(); err != nil {
		log.Printf("watchdog reset: %v", err)
	}
}

// Run waits out the start-up delay, arms the watchdog and polls until ctx
// is done. Cycles never overlap. All motors are stopped on return.
func (c *Controller) Run(ctx context.Context) error {
	c.clock.Sleep(c.startup)
	if err := c.guard.Arm(c.guardTimeout); err != nil {
		return fmt.Errorf("arm watchdog: %w", err)
	}
	log.Printf("control loop started (cycle=%s, watchdog=%s policy=%s)", c.cycle, c.guardTimeout, c.policy)
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		default:
		}
		c.Cycle()
		c.clock.Sleep(c.cycle)
	}
}

// Stop halts every motor.
func (c *Controller) Stop() {
	for _, ch := range []hal.Channel{hal.Left, hal.Right, hal.Conveyor} {
		if err := c.motors.SetMotor(ch, hal.Stopped, 0); err != nil {
			log.Printf("stop %s: %v", ch, err)
		}
	}
}
