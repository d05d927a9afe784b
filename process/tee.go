package process

import (
	"errors"

	"github.com/edgevid/shmcast"
	"github.com/edgevid/shmcast/frame"
)

// Tee fans one frame out to several processors within the same loop
// iteration. Every processor sees every frame even when an earlier one
// fails; the combined error is reported to the loop afterwards.
type Tee []shmcast.Processor

func (t Tee) Process(f *frame.Frame) error {
	var errs []error
	for _, p := range t {
		if err := p.Process(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
