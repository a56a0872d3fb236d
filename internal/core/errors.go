package core

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration unavailable")
	ErrMediaAcquisition = errors.New("media acquisition failed")
	ErrSignaling        = errors.New("signaling failed")
	ErrProtocol         = errors.New("malformed event")
	ErrServerReported   = errors.New("server reported error")
	ErrConnectAborted   = errors.New("connect aborted by disconnect")
)

// ServerError is an error event sent by the service.
type ServerError struct {
	Type    string
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrServerReported, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", ErrServerReported, msg)
}

func (e *ServerError) Is(target error) bool { return target == ErrServerReported }
