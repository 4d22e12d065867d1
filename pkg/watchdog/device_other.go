//go:build !linux

package watchdog

import "time"

type Device struct{}

func OpenDevice(path string) (*Device, error) { return nil, ErrUnsupported }

func (d *Device) Arm(time.Duration) error   { return ErrUnsupported }
func (d *Device) Reset() error              { return ErrUnsupported }
func (d *Device) Identity() (string, error) { return "", ErrUnsupported }
func (d *Device) Close() error              { return nil }
