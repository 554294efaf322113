package engine

import "github.com/m3rciful/artbot/internal/render"

// Kind classifies an inbound event.
type Kind string

const (
	KindCommand Kind = "command"
	KindButton  Kind = "button"
	KindText    Kind = "text"
	KindPhoto   Kind = "photo"
	KindOther   Kind = "other"
)

// Commands the engine understands.
const (
	CommandStart = "start"
	CommandMenu  = "menu"
)

// Event is one inbound update reduced to what the conversation needs.
type Event struct {
	// UpdateID is the transport update id. Zero disables re-delivery checks.
	UpdateID int
	UserID   int64
	Kind     Kind
	Command  string
	Action   render.Action
	Text     string
	PhotoRef string
}

// Name is a short label used in logs.
func (e Event) Name() string {
	switch e.Kind {
	case KindCommand:
		return "/" + e.Command
	case KindButton:
		return e.Action.Encode()
	}
	return string(e.Kind)
}
