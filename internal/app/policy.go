package app

import "github.com/dkeye/rtvoice/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickClient
)

// Policy decides what happens when a UI client's outbound queue is full.
// dropped counts the frames already dropped for that client.
type Policy interface {
	OnBackPressure(sid core.SessionID, dropped int) BackpressureAction
}

// SimplePolicy drops frames and kicks the client after MaxDropped of them.
// A zero MaxDropped kicks on the first full queue.
type SimplePolicy struct {
	MaxDropped int
}

func (p SimplePolicy) OnBackPressure(_ core.SessionID, dropped int) BackpressureAction {
	if dropped >= p.MaxDropped {
		return KickClient
	}
	return DropFrame
}
