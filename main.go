package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"github.com/ericogr/conveyor-rover/pkg/control"
	"github.com/ericogr/conveyor-rover/pkg/hal"
	"github.com/ericogr/conveyor-rover/pkg/output"
	"github.com/ericogr/conveyor-rover/pkg/output/console"
	mqttout "github.com/ericogr/conveyor-rover/pkg/output/mqtt"
	"github.com/ericogr/conveyor-rover/pkg/output/status"
	"github.com/ericogr/conveyor-rover/pkg/watchdog"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatal(err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config) error {
	log.Printf("starting conveyor-rover (hardware=%s watchdog=%s)", cfg.HardwareType, cfg.Watchdog.Type)

	board, err := newBoard(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	outs, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	fan := output.NewFanout(outs...)
	defer fan.Close()

	guard, err := watchdog.New(cfg.Watchdog)
	if err != nil {
		return err
	}
	defer guard.Close()
	if d, ok := guard.(*watchdog.Device); ok {
		if id, err := d.Identity(); err == nil {
			log.Printf("hardware watchdog: %s", id)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := control.New(cfg, board, hal.SystemClock(), guard, fan)
	if err := ctrl.Run(ctx); err != nil {
		return err
	}
	log.Printf("stopped")
	return nil
}

func newBoard(cfg config.Config) (hal.HAL, error) {
	switch cfg.HardwareType {
	case config.HardwareReal:
		return hal.NewPeriph(cfg)
	case config.HardwareSimulation:
		return hal.NewSimulated(time.Now().UnixNano(), cfg.Verbose), nil
	}
	return nil, fmt.Errorf("unknown hardware type %q", cfg.HardwareType)
}

func initOutputs(cfg config.Config) ([]output.Output, error) {
	entries := make([]output.Output, 0, len(cfg.Outputs))
	fail := func(err error) ([]output.Output, error) {
		for _, e := range entries {
			_ = e.Close()
		}
		return nil, err
	}
	for _, oc := range cfg.Outputs {
		switch oc.Type {
		case config.OutputConsole:
			entries = append(entries, console.NewConsole())
		case config.OutputMQTT:
			if oc.MQTT == nil {
				return fail(fmt.Errorf("mqtt output without mqtt settings"))
			}
			o, err := mqttout.NewMQTT(*oc.MQTT)
			if err != nil {
				return fail(err)
			}
			entries = append(entries, o)
		case config.OutputStatus:
			if oc.Status == nil {
				return fail(fmt.Errorf("status output without status settings"))
			}
			o, err := status.NewStatus(*oc.Status)
			if err != nil {
				return fail(err)
			}
			entries = append(entries, o)
		default:
			return fail(fmt.Errorf("unknown output type %q", oc.Type))
		}
	}
	return entries, nil
}
