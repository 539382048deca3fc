package adapters

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"grievancebot/services/models"
)

// ErrEmptyMessage is returned for frames that carry nothing to act on.
var ErrEmptyMessage = errors.New("empty message")

// maxTextLen caps free text forwarded to the orchestrator.
const maxTextLen = 1000

// NormalizeWebMessage converts a widget frame into a MessageEnvelope. Frames
// without a type are treated as text, so {"text": "..."} keeps working.
func NormalizeWebMessage(widgetID string, in models.WSIncoming) (models.MessageEnvelope, error) {
	ev := in
	ev.Type = strings.ToLower(strings.TrimSpace(ev.Type))
	if ev.Type == "" {
		ev.Type = models.EventText
	}

	switch ev.Type {
	case models.EventText:
		ev.Text = strings.TrimSpace(ev.Text)
		if ev.Text == "" {
			return models.MessageEnvelope{}, ErrEmptyMessage
		}
		if r := []rune(ev.Text); len(r) > maxTextLen {
			ev.Text = string(r[:maxTextLen])
		}
	case models.EventSuggestion:
		if ev.Key == "" {
			return models.MessageEnvelope{}, ErrEmptyMessage
		}
	case models.EventLanguage:
		if ev.Language == "" {
			return models.MessageEnvelope{}, ErrEmptyMessage
		}
	case models.EventOption, models.EventRating, models.EventRatingSubmit,
		models.EventRestart, models.EventClear:
	default:
		return models.MessageEnvelope{}, fmt.Errorf("unsupported message type %q", in.Type)
	}
	return envelope(widgetID, ev), nil
}

// OpenEnvelope announces a new widget connection.
func OpenEnvelope(widgetID, language string) models.MessageEnvelope {
	return envelope(widgetID, models.ClientEvent{Type: models.EventOpen, Language: language})
}

// CloseEnvelope tells the orchestrator the widget went away.
func CloseEnvelope(widgetID string) models.MessageEnvelope {
	return envelope(widgetID, models.ClientEvent{Type: models.EventClose})
}

func envelope(widgetID string, ev models.ClientEvent) models.MessageEnvelope {
	return models.MessageEnvelope{
		MessageID: uuid.New().String(),
		WidgetID:  widgetID,
		Channel:   models.ChannelWeb,
		Timestamp: time.Now().UTC(),
		Event:     ev,
	}
}
