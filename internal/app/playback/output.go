package playback

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type OutputState int32

const (
	OutputOk OutputState = iota
	OutputMuted
	OutputDelete
)

// RTPWriter consumes remote audio packets.
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Output is a single destination of a relay.
type Output struct {
	W     RTPWriter
	state atomic.Int32 // Zero by default (OutputOk)
}

func NewOutput(w RTPWriter) *Output {
	return &Output{W: w}
}

func (o *Output) State() OutputState {
	return OutputState(o.state.Load())
}

func (o *Output) MarkOk() {
	o.state.CompareAndSwap(int32(OutputMuted), int32(OutputOk))
}

func (o *Output) MarkMuted() {
	o.state.CompareAndSwap(int32(OutputOk), int32(OutputMuted))
}

func (o *Output) MarkDelete() {
	o.state.Store(int32(OutputDelete))
}

// Discard drops every packet.
type Discard struct{}

func (Discard) WriteRTP(*rtp.Packet) error { return nil }
func (Discard) Close() error               { return nil }
