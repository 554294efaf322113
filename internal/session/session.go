// Package session keeps the per-user conversation state between updates.
package session

import (
	"context"
	"time"
)

// State names a point in the conversation.
type State string

const (
	StateRoot                  State = "ROOT"
	StateAwaitingLanguage      State = "AWAITING_LANGUAGE_CHOICE"
	StateAwaitingTemplate      State = "AWAITING_TEMPLATE_CHOICE"
	StateAwaitingCustomPrompt  State = "AWAITING_CUSTOM_PROMPT_TEXT"
	StateReviewingCustomPrompt State = "REVIEWING_CUSTOM_PROMPT"
	StateAwaitingPhoto         State = "AWAITING_PHOTO"
	StateAwaitingTopUpMethod   State = "AWAITING_TOPUP_METHOD"
	StateAwaitingTopUpAmount   State = "AWAITING_TOPUP_AMOUNT"
)

// PromptSource tells which kind of prompt a draft carries.
type PromptSource string

const (
	SourceNone     PromptSource = ""
	SourceTemplate PromptSource = "template"
	SourceCustom   PromptSource = "custom"
)

// Draft is the in-progress data of the current flow.
type Draft struct {
	Source        PromptSource `json:"prompt_source,omitempty"`
	TemplateID    int          `json:"template_id,omitempty"`
	CustomPrompt  string       `json:"custom_prompt,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Page          int          `json:"page,omitempty"`
}

// UseTemplate switches the draft to template id.
func (d *Draft) UseTemplate(id int) {
	d.Source = SourceTemplate
	d.TemplateID = id
	d.CustomPrompt = ""
}

// UseCustom switches the draft to a free-form prompt.
func (d *Draft) UseCustom(prompt string) {
	d.Source = SourceCustom
	d.TemplateID = 0
	d.CustomPrompt = prompt
}

// Ready reports whether the draft names a prompt.
func (d Draft) Ready() bool {
	switch d.Source {
	case SourceTemplate:
		return d.TemplateID > 0
	case SourceCustom:
		return d.CustomPrompt != ""
	}
	return false
}

// LastGeneration describes the most recent successful generation.
type LastGeneration struct {
	Source     PromptSource `json:"prompt_source"`
	TemplateID int          `json:"template_id,omitempty"`
	Prompt     string       `json:"prompt,omitempty"`
	PhotoRef   string       `json:"photo_ref"`
}

// Session is the stored conversation of one user.
type Session struct {
	UserID    int64           `json:"user_id"`
	State     State           `json:"state"`
	Draft     Draft           `json:"draft"`
	Last      *LastGeneration `json:"last,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New returns the initial session of userID.
func New(userID int64) *Session {
	return &Session{UserID: userID, State: StateRoot}
}

// Reset clears the draft and returns to ROOT. Last is kept.
func (s *Session) Reset() {
	s.State = StateRoot
	s.Draft = Draft{}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.Last != nil {
		last := *s.Last
		c.Last = &last
	}
	return &c
}

// Store persists sessions by user id.
type Store interface {
	// Get returns the stored session or a fresh ROOT session when absent.
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID int64) error
}
