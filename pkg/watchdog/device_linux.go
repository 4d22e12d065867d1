//go:build linux

package watchdog

import (
	"bytes"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Device is a Linux kernel watchdog (/dev/watchdog). Opening the device
// starts the hardware timer.
type Device struct {
	f *os.File
}

func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f}, nil
}

// Arm sets the hardware timeout, rounded up to whole seconds, and pets the
// watchdog once.
func (d *Device) Arm(timeout time.Duration) error {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(d.f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		return err
	}
	return d.Reset()
}

func (d *Device) Reset() error {
	return unix.IoctlWatchdogKeepalive(int(d.f.Fd()))
}

// Identity returns the driver's identity string, e.g. "Broadcom BCM2835 Watchdog timer".
func (d *Device) Identity() (string, error) {
	info, err := unix.IoctlGetWatchdogInfo(int(d.f.Fd()))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(info.Identity[:], "\x00")), nil
}

// Close disarms the watchdog with the magic close character before
// releasing the device.
func (d *Device) Close() error {
	if _, err := d.f.Write([]byte("V")); err != nil {
		_ = d.f.Close()
		return err
	}
	return d.f.Close()
}
