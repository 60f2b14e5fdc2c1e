// Package realtime defines the JSON events exchanged with the OpenAI
// Realtime API over the peer data channel, plus the session endpoints
// used to establish one.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// API endpoints and defaults.
const (
	BaseURL      = "https://api.openai.com/v1/realtime"
	SessionsURL  = BaseURL + "/sessions"
	WebSocketURL = "wss://api.openai.com/v1/realtime"

	// BetaHeader must be sent on WebSocket connections.
	BetaHeader = "realtime=v1"
)

// EventType identifies a Realtime API event.
type EventType string

const (
	// Outbound (client → service)
	TypeSessionUpdate          EventType = "session.update"
	TypeConversationItemCreate EventType = "conversation.item.create"
	TypeResponseCreate         EventType = "response.create"
	TypeResponseCancel         EventType = "response.cancel"

	// Inbound (service → client)
	TypeSessionCreated          EventType = "session.created"
	TypeSessionUpdated          EventType = "session.updated"
	TypeFunctionCallArgsDone    EventType = "response.function_call_arguments.done"
	TypeInputTranscriptDone     EventType = "conversation.item.input_audio_transcription.completed"
	TypeResponseTranscriptDelta EventType = "response.audio_transcript.delta"
	TypeResponseTranscriptDone  EventType = "response.audio_transcript.done"
	TypeError                   EventType = "error"
)

// ToolSchema advertises one callable tool to the service.
type ToolSchema struct {
	Type        string         `json:"type"` // always "function"
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Session is the configuration payload of a session.update event. The
// tool list is always the complete set, never a diff.
type Session struct {
	Modalities   []string     `json:"modalities,omitempty"`
	Instructions string       `json:"instructions,omitempty"`
	Voice        string       `json:"voice,omitempty"`
	Tools        []ToolSchema `json:"tools"`
	ToolChoice   string       `json:"tool_choice,omitempty"`
}

// Item is a conversation item carried by conversation.item.create.
type Item struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// APIError is the payload of an error event.
type APIError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is a single Realtime API protocol message. Fields are populated
// according to Type; unknown inbound fields are ignored.
type Event struct {
	EventID string    `json:"event_id,omitempty"`
	Type    EventType `json:"type"`

	// Function call fields (response.function_call_arguments.done).
	// Arguments is a serialized JSON object.
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Transcript fields.
	Transcript string `json:"transcript,omitempty"`
	Delta      string `json:"delta,omitempty"`

	Session *Session  `json:"session,omitempty"`
	Item    *Item     `json:"item,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// NewSessionUpdate builds a session.update event.
func NewSessionUpdate(s Session) *Event {
	return &Event{
		EventID: newEventID(),
		Type:    TypeSessionUpdate,
		Session: &s,
	}
}

// NewFunctionCallOutput builds the conversation.item.create event that
// returns a tool result, correlated by the originating call ID.
func NewFunctionCallOutput(callID, output string) *Event {
	return &Event{
		EventID: newEventID(),
		Type:    TypeConversationItemCreate,
		Item: &Item{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// NewResponseCreate builds the signal asking the service to produce its
// next reply.
func NewResponseCreate() *Event {
	return &Event{
		EventID: newEventID(),
		Type:    TypeResponseCreate,
	}
}

// Marshal returns the JSON encoding of the event.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes an inbound protocol message.
func ParseEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("realtime: parse event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("realtime: event missing type")
	}
	return &e, nil
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}
