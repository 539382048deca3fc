// Package models holds the wire types shared by the channel adapter and the
// orchestrator: stream envelopes and socket frames.
package models

import (
	"encoding/json"
	"time"
)

// Stream and channel names shared by both services.
const (
	StreamKey      = "grievance:inbound"
	ResponsePrefix = "response:"
	ChannelWeb     = "web"
)

// ResponseChannel is the pub/sub channel a widget's socket listens on.
func ResponseChannel(widgetID string) string {
	return ResponsePrefix + widgetID
}

// Client event types.
const (
	EventOpen          = "open"
	EventText          = "text"
	EventOption        = "option"
	EventSuggestion    = "suggestion"
	EventRating        = "rating"
	EventRatingSubmit  = "rating_submit"
	EventLanguage      = "language"
	EventRestart       = "restart"
	EventClear         = "clear"
	EventClose         = "close"
	EventBackendResult = "backend_result"
)

// ClientEvent is one widget interaction.
type ClientEvent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Index    int    `json:"index"`
	Key      string `json:"key,omitempty"`
	Rating   int    `json:"rating,omitempty"`
	Language string `json:"language,omitempty"`
}

// BackendResult carries the outcome of a backend call back into the stream.
type BackendResult struct {
	Op        string `json:"op"`
	Epoch     int    `json:"epoch"`
	SessionID string `json:"session_id"`
	Found     bool   `json:"found,omitempty"`
	Message   string `json:"message,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
}

// MessageEnvelope is the unit written to the inbound stream.
type MessageEnvelope struct {
	MessageID string         `json:"message_id"`
	WidgetID  string         `json:"widget_id"`
	Channel   string         `json:"channel"`
	Timestamp time.Time      `json:"timestamp"`
	Event     ClientEvent    `json:"event"`
	Result    *BackendResult `json:"result,omitempty"`
}

// WSIncoming is a frame read from the widget socket.
type WSIncoming = ClientEvent

// Socket frame types.
const (
	FrameConnected  = "connected"
	FrameDirectives = "directives"
	FrameError      = "error"
)

// WSResponse is a frame written to the widget socket. Directives is passed
// through untouched by the adapter.
type WSResponse struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	WidgetID   string          `json:"widget_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	State      string          `json:"state,omitempty"`
	Directives json.RawMessage `json:"directives,omitempty"`
}
