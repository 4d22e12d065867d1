package watchdog

import (
	"errors"
	"testing"
	"time"
)

func TestSoftwareExpires(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSoftware(func() { fired <- struct{}{} })
	if err := s.Arm(20 * time.Millisecond); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer s.Close()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("watchdog did not expire")
	}
}

func TestSoftwareResetPostponesExpiry(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSoftware(func() { fired <- struct{}{} })
	if err := s.Arm(100 * time.Millisecond); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer s.Close()

	for i := 0; i < 6; i++ {
		time.Sleep(30 * time.Millisecond)
		if err := s.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	select {
	case <-fired:
		t.Fatalf("watchdog expired while being reset")
	default:
	}
}

func TestSoftwareResetBeforeArm(t *testing.T) {
	s := NewSoftware(func() {})
	if err := s.Reset(); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("expected ErrNotArmed, got %v", err)
	}
}

func TestSoftwareCloseStops(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSoftware(func() { fired <- struct{}{} })
	_ = s.Arm(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-fired:
		t.Fatalf("closed watchdog expired")
	case <-time.After(60 * time.Millisecond):
	}
}
