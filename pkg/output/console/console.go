package console

import (
	"fmt"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/control"
	"github.com/ericogr/conveyor-rover/pkg/output"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(e control.Event) error {
	ts := e.Timestamp.Format(time.RFC3339)
	switch e.Kind {
	case control.EventDrive:
		fmt.Printf("%s %s code=%s\n", ts, e.Action, e.Code)
	case control.EventConveyorStart:
		fmt.Printf("%s CONVEYOR START distance=%.1fcm\n", ts, e.Distance)
	case control.EventConveyorStop:
		fmt.Printf("%s CONVEYOR STOP\n", ts)
	default:
		fmt.Printf("%s %s\n", ts, e.Kind)
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
