package models

// MClientCommand is a message sent by a websocket viewer.
type MClientCommand struct {
	Command string `json:"command"`
}

const (
	CommandSnapshot = "snapshot"
	CommandPing     = "ping"
)
