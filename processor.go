package shmcast

import "github.com/edgevid/shmcast/frame"

// Processor consumes one received frame. It is called synchronously from the
// receive loop with a read-only view that is only valid for the duration of
// the call: the underlying sample is released as soon as Process returns, so
// implementations must copy anything they want to keep.
//
// A Process error marks the frame as failed but does not stop the loop.
type Processor interface {
	Process(f *frame.Frame) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(*frame.Frame) error

func (fn ProcessorFunc) Process(f *frame.Frame) error {
	return fn(f)
}
