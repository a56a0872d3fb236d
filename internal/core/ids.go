package core

// SessionID identifies one UI client (the "ct" cookie token).
type SessionID string

// Frame is an encoded message queued for a UI client.
type Frame []byte
