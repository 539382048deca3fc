package dialogue

import "grievancebot/services/orchestrator/langpack"

// Event is anything the engine reacts to: user input, widget controls and
// the outcome of backend calls.
type Event interface {
	event()
}

// UserText is a submitted free-text message.
type UserText struct{ Text string }

// OptionChosen is a click on an option button; 0 is yes and 1 is no.
type OptionChosen struct{ Index int }

// SuggestionChosen is a click on a quick-reply suggestion.
type SuggestionChosen struct{ Key string }

// RatingChosen selects a star rating.
type RatingChosen struct{ Value int }

// RatingSubmit is a click on the rating submit button.
type RatingSubmit struct{}

// LanguageChanged switches the widget locale.
type LanguageChanged struct{ Locale langpack.Locale }

// Restart starts the conversation over with the same session id.
type Restart struct{}

// ClearChat starts the conversation over with a new session id.
type ClearChat struct{}

// StatusResult is the outcome of a status lookup request.
type StatusResult struct {
	Epoch   int
	Found   bool
	Message string
	Err     error
}

// RatingResult is the outcome of a rating submission.
type RatingResult struct {
	Epoch int
	Err   error
}

// QueryResult is the outcome of a free-text query to the answer service.
type QueryResult struct {
	Epoch int
	Reply string
	Err   error
}

func (UserText) event()         {}
func (OptionChosen) event()     {}
func (SuggestionChosen) event() {}
func (RatingChosen) event()     {}
func (RatingSubmit) event()     {}
func (LanguageChanged) event()  {}
func (Restart) event()          {}
func (ClearChat) event()        {}
func (StatusResult) event()     {}
func (RatingResult) event()     {}
func (QueryResult) event()      {}
