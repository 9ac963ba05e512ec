package models

import (
	"fmt"
	"strings"
)

type EventKind string

const (
	EventCommandStart     EventKind = "command_start"
	EventButtonPressed    EventKind = "button_pressed"
	EventTextReceived     EventKind = "text_received"
	EventDocumentReceived EventKind = "document_received"
)

type Document struct {
	FileName    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// Event is one inbound interaction from an operator. Only the field matching
// Kind is meaningful.
type Event struct {
	Kind     EventKind `json:"kind"`
	Action   string    `json:"action,omitempty"`
	Text     string    `json:"text,omitempty"`
	Document *Document `json:"document,omitempty"`
}

type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Reply is what the console answers to an event. The transport decides how to
// render it.
type Reply struct {
	Text     string    `json:"text"`
	Buttons  []Button  `json:"buttons,omitempty"`
	Document *Document `json:"document,omitempty"`
	Notice   bool      `json:"notice,omitempty"`
}

// ActionToken is the parsed form of namespace:verb[:dataset[:record[:extra]]].
type ActionToken struct {
	Namespace string
	Verb      string
	Dataset   string
	RecordID  string
	Extra     string
}

// ParseActionToken splits a token into at most five parts, so extra may itself
// contain colons.
func ParseActionToken(raw string) (ActionToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ActionToken{}, ErrInvalidActionToken
	}
	parts := strings.SplitN(raw, ":", 5)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ActionToken{}, fmt.Errorf("%w: %q", ErrInvalidActionToken, raw)
	}
	token := ActionToken{Namespace: parts[0], Verb: parts[1]}
	if len(parts) > 2 {
		token.Dataset = parts[2]
	}
	if len(parts) > 3 {
		token.RecordID = parts[3]
	}
	if len(parts) > 4 {
		token.Extra = parts[4]
	}
	return token, nil
}

func (t ActionToken) String() string {
	parts := []string{t.Namespace, t.Verb}
	switch {
	case t.Extra != "":
		parts = append(parts, t.Dataset, t.RecordID, t.Extra)
	case t.RecordID != "":
		parts = append(parts, t.Dataset, t.RecordID)
	case t.Dataset != "":
		parts = append(parts, t.Dataset)
	}
	return strings.Join(parts, ":")
}

// Action builds a token string from its parts, dropping trailing empty parts.
func Action(namespace, verb string, rest ...string) string {
	t := ActionToken{Namespace: namespace, Verb: verb}
	if len(rest) > 0 {
		t.Dataset = rest[0]
	}
	if len(rest) > 1 {
		t.RecordID = rest[1]
	}
	if len(rest) > 2 {
		t.Extra = rest[2]
	}
	return t.String()
}

// InboundMessage is a raw chat message before it is translated into an Event.
type InboundMessage struct {
	ChatID      string
	SenderPhone string
	Text        string
	Document    *Document
}
