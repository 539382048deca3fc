package dialogue

import (
	"time"

	"github.com/google/uuid"

	"grievancebot/services/orchestrator/langpack"
)

// maxTranscript bounds the number of messages kept on a session.
const maxTranscript = 50

// Author identifies who wrote a transcript message.
type Author string

const (
	AuthorUser Author = "user"
	AuthorBot  Author = "bot"
)

// Message is one transcript entry. Messages are appended and never edited.
type Message struct {
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the mutable record of one widget conversation. Only Engine
// mutates it.
type Session struct {
	ID                 string          `json:"id"`
	Language           langpack.Locale `json:"language"`
	State              State           `json:"state"`
	PendingGrievanceID string          `json:"pending_grievance_id,omitempty"`
	SelectedRating     int             `json:"selected_rating,omitempty"`
	InFlight           Operation       `json:"in_flight,omitempty"`
	// Epoch is bumped on every reset; backend results issued under an older
	// epoch are discarded.
	Epoch      int       `json:"epoch"`
	Transcript []Message `json:"transcript,omitempty"`
}

// NewSession returns a session in the Start state with a fresh id.
func NewSession(locale langpack.Locale) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Language: locale,
		State:    StateStart,
	}
}

// HasMessages reports whether anything has been said in the conversation.
func (s *Session) HasMessages() bool {
	return len(s.Transcript) > 0
}

func (s *Session) record(author Author, text string, at time.Time) {
	if text == "" {
		return
	}
	s.Transcript = append(s.Transcript, Message{Text: text, Author: author, Timestamp: at})
	if len(s.Transcript) > maxTranscript {
		s.Transcript = append([]Message(nil), s.Transcript[len(s.Transcript)-maxTranscript:]...)
	}
}

// reset returns the session to Start and reports whether a backend call was
// outstanding.
func (s *Session) reset() bool {
	cancelled := s.InFlight != OpNone
	s.State = StateStart
	s.PendingGrievanceID = ""
	s.SelectedRating = 0
	s.InFlight = OpNone
	s.Epoch++
	s.Transcript = nil
	return cancelled
}
