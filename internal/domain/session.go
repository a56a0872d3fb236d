// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var (
	ErrEndpointEmpty   = errors.New("signaling endpoint empty")
	ErrModelEmpty      = errors.New("model identifier empty")
	ErrCredentialEmpty = errors.New("ephemeral credential empty")
)

// SessionConfig is what a session needs to reach the service. It is fetched
// once per Initialize and never mutated afterwards.
type SessionConfig struct {
	SignalingEndpoint string `json:"webrtcEndpoint"`
	Model             string `json:"deployment"`
	Credential        string `json:"ephemeralKey"`
}

func (c SessionConfig) Validate() error {
	switch {
	case c.SignalingEndpoint == "":
		return ErrEndpointEmpty
	case c.Model == "":
		return ErrModelEmpty
	case c.Credential == "":
		return ErrCredentialEmpty
	}
	return nil
}
