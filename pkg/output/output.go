package output

import (
	"errors"
	"log"

	"github.com/ericogr/conveyor-rover/pkg/control"
)

type Output interface {
	Publish(control.Event) error
	Close() error
}

// Fanout delivers controller events to every configured output. A failing
// output is logged and does not stop delivery to the others.
type Fanout struct {
	outputs []Output
}

func NewFanout(outs ...Output) *Fanout {
	return &Fanout{outputs: outs}
}

func (f *Fanout) Notify(e control.Event) {
	for _, o := range f.outputs {
		if err := o.Publish(e); err != nil {
			log.Printf("output publish error: %v", err)
		}
	}
}

func (f *Fanout) Close() error {
	var errs []error
	for _, o := range f.outputs {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}

// helper constructors are in subpackages
