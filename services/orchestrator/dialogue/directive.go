package dialogue

import (
	"time"

	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/statusfmt"
)

// DirectiveKind tells the presentation layer what to render.
type DirectiveKind string

const (
	ShowMessage         DirectiveKind = "message"
	ShowOptions         DirectiveKind = "options"
	ShowSuggestions     DirectiveKind = "suggestions"
	ShowRatingWidget    DirectiveKind = "rating_widget"
	EnableSubmit        DirectiveKind = "submit_enabled"
	DisableSubmit       DirectiveKind = "submit_disabled"
	ShowGrievanceStatus DirectiveKind = "grievance_status"
	ShowStatus          DirectiveKind = "status"
	RenderChrome        DirectiveKind = "chrome"
	ClearTranscript     DirectiveKind = "clear_transcript"
	ShowTyping          DirectiveKind = "typing"
	ShowConnection      DirectiveKind = "connection"
)

// Status levels for ShowStatus and ShowConnection directives.
const (
	LevelInfo    = "info"
	LevelError   = "error"
	LevelSuccess = "success"
	LevelOnline  = "online"
	LevelOffline = "offline"
)

// Chrome carries the static widget labels for a locale.
type Chrome struct {
	Language         langpack.Locale `json:"language"`
	LanguageName     string          `json:"language_name"`
	Placeholder      string          `json:"placeholder"`
	ClearChat        string          `json:"clear_chat"`
	NewSession       string          `json:"new_session"`
	SuggestionsLabel string          `json:"suggestions_label"`
}

// Directive is one rendering instruction. DelayMS asks the presentation
// layer to wait before rendering it, which is how typing pauses between bot
// messages are expressed.
type Directive struct {
	Kind         DirectiveKind         `json:"kind"`
	Text         string                `json:"text,omitempty"`
	Options      []string              `json:"options,omitempty"`
	Suggestions  []langpack.Suggestion `json:"suggestions,omitempty"`
	Links        []langpack.Link       `json:"links,omitempty"`
	Fields       []statusfmt.Field     `json:"fields,omitempty"`
	RatingLabels []string              `json:"rating_labels,omitempty"`
	SubmitLabel  string                `json:"submit_label,omitempty"`
	Rating       int                   `json:"rating,omitempty"`
	Level        string                `json:"level,omitempty"`
	Chrome       *Chrome               `json:"chrome,omitempty"`
	DelayMS      int64                 `json:"delay_ms,omitempty"`
}

// Delay returns the pause to honor before rendering d.
func (d Directive) Delay() time.Duration {
	return time.Duration(d.DelayMS) * time.Millisecond
}

// Request is a backend call the engine wants made on its behalf. The caller
// feeds the outcome back as a StatusResult, RatingResult or QueryResult
// carrying the same Epoch.
type Request struct {
	Op          Operation       `json:"op"`
	Epoch       int             `json:"epoch"`
	SessionID   string          `json:"session_id"`
	Language    langpack.Locale `json:"language"`
	GrievanceID string          `json:"grievance_id,omitempty"`
	Rating      int             `json:"rating,omitempty"`
	Text        string          `json:"text,omitempty"`
}

// Result is the outcome of handling one event.
type Result struct {
	State      State
	Directives []Directive
	Request    *Request
	// CancelInFlight is set when the event discarded an outstanding backend
	// call; the caller should abort it.
	CancelInFlight bool
}
