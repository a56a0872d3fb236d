package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Constraints are the capture settings requested from a MediaSource.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// LocalMedia is an acquired capture stream.
type LocalMedia interface {
	Track() webrtc.TrackLocal
	// Stop releases the capture device. Safe to call more than once.
	Stop()
}

type MediaSource interface {
	Acquire(ctx context.Context, c Constraints) (LocalMedia, error)
}

// AudioSink receives remote audio tracks. Attach owns reading the track
// until ctx is done or the track ends.
type AudioSink interface {
	Attach(ctx context.Context, track *webrtc.TrackRemote)
}
