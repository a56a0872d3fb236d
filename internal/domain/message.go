package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageMode string

const (
	// ModeAppend extends the live message of the role, starting one if none is live.
	ModeAppend MessageMode = "append"
	// ModeComplete carries a finished message. It replaces a live message of
	// the same role, otherwise it is a new message.
	ModeComplete MessageMode = "complete"
)

type Message struct {
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Mode    MessageMode `json:"mode"`
}
