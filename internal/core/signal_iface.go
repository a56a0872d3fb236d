package core

import (
	"context"

	"github.com/dkeye/rtvoice/internal/domain"
)

// Signaler exchanges a local offer for the service's answer.
type Signaler interface {
	Exchange(ctx context.Context, cfg domain.SessionConfig, offerSDP string) (string, error)
}
