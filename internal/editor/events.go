package editor

import (
	"encoding/json"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/preview"
	"github.com/debemdeboas/markedit/internal/sse"
)

type EventKind string

const (
	EventPreview   EventKind = "preview"
	EventStatus    EventKind = "status"
	EventHeading   EventKind = "heading"
	EventPrompt    EventKind = "prompt"
	EventNavigated EventKind = "navigated"
)

// Status messages shown by the embedding view.
const (
	StatusSaving   = "Saving..."
	StatusSaved    = "Saved"
	StatusFailed   = "Save failed"
	StatusModified = "Unsaved changes"
)

type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

type PromptKind string

const (
	PromptUnsaved PromptKind = "unsaved"
	PromptRecover PromptKind = "recover"
)

type Prompt struct {
	Kind    PromptKind `json:"kind"`
	Options []string   `json:"options"`

	// Target is where the blocked navigation was headed.
	Target string `json:"target,omitempty"`

	DraftUpdatedAt *time.Time `json:"draftUpdatedAt,omitempty"`
}

type Navigation struct {
	Target  string `json:"target"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Event is pushed to the embedding view whenever the session changes outside a request.
type Event struct {
	Kind       EventKind        `json:"kind"`
	DocumentID model.DocumentID `json:"documentId"`

	Preview   *preview.Result `json:"preview,omitempty"`
	Status    *Status         `json:"status,omitempty"`
	Heading   *preview.Box    `json:"heading,omitempty"`
	Prompt    *Prompt         `json:"prompt,omitempty"`
	Navigated *Navigation     `json:"navigated,omitempty"`
}

type Sink interface {
	Publish(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) {
	f(e)
}

// SSESink forwards events to the SSE clients watching the event's document.
type SSESink struct {
	clients *sse.Clients
}

func NewSSESink(clients *sse.Clients) *SSESink {
	return &SSESink{clients: clients}
}

func (s *SSESink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		editorLogger.Error().Err(err).Str("event", string(e.Kind)).Msg("Failed to encode event")
		return
	}
	s.clients.Broadcast(e.DocumentID, sse.Message{Event: string(e.Kind), Data: string(data)})
}
