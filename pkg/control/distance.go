package control

import (
	"log"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/hal"
)

// speed of sound; echo time covers the round trip
const cmPerMicrosecond = 0.034

// Distance is a ranger reading in centimeters.
type Distance float64

// DistanceMonitor samples the ranger and runs the conveyor for a fixed
// window after each reading closer than the threshold. Every trigger
// restarts the window.
type DistanceMonitor struct {
	ranger hal.Ranger
	motors hal.MotorDriver
	notify Notifier

	threshold   Distance
	noEcho      Distance
	echoTimeout time.Duration
	runFor      time.Duration
	speed       uint8

	running   bool
	startTime time.Time
}

func (m *DistanceMonitor) Sample() Distance {
	if err := m.ranger.TriggerPulse(); err != nil {
		log.Printf("ranger trigger: %v", err)
		return m.noEcho
	}
	d, ok := m.ranger.MeasureEcho(m.echoTimeout)
	if !ok || d <= 0 {
		return m.noEcho
	}
	return echoDistance(d)
}

func echoDistance(d time.Duration) Distance {
	us := float64(d) / float64(time.Microsecond)
	return Distance(us * cmPerMicrosecond / 2)
}

// Triggers reports whether d counts as an object in range. The no-echo
// sentinel never does.
func (m *DistanceMonitor) Triggers(d Distance) bool {
	return d != m.noEcho && d < m.threshold
}

// Update applies one reading taken at now. It returns true when the reading
// armed the conveyor.
func (m *DistanceMonitor) Update(now time.Time, d Distance) bool {
	triggered := m.Triggers(d)
	if triggered {
		if !m.running {
			m.notify.Notify(Event{Kind: EventConveyorStart, Distance: float64(d), Timestamp: now})
		}
		m.running = true
		m.startTime = now
	}
	if !m.running {
		return triggered
	}
	if err := m.motors.SetMotor(hal.Conveyor, hal.Backward, m.speed); err != nil {
		log.Printf("conveyor run: %v", err)
	}
	if now.Sub(m.startTime) >= m.runFor {
		if err := m.motors.SetMotor(hal.Conveyor, hal.Stopped, 0); err != nil {
			log.Printf("conveyor stop: %v", err)
		}
		m.running = false
		m.notify.Notify(Event{Kind: EventConveyorStop, Timestamp: now})
	}
	return triggered
}

func (m *DistanceMonitor) Running() bool { return m.running }

// Deadline is when the current run ends; zero when the conveyor is idle.
func (m *DistanceMonitor) Deadline() time.Time {
	if !m.running {
		return time.Time{}
	}
	return m.startTime.Add(m.runFor)
}
