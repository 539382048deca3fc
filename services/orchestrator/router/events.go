package router

import (
	"errors"
	"fmt"

	"grievancebot/services/models"
	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/langpack"
)

// toEvent maps a client or backend envelope onto an engine event.
func toEvent(env models.MessageEnvelope) (dialogue.Event, error) {
	e := env.Event
	switch e.Type {
	case models.EventText:
		return dialogue.UserText{Text: e.Text}, nil
	case models.EventOption:
		return dialogue.OptionChosen{Index: e.Index}, nil
	case models.EventSuggestion:
		return dialogue.SuggestionChosen{Key: e.Key}, nil
	case models.EventRating:
		return dialogue.RatingChosen{Value: e.Rating}, nil
	case models.EventRatingSubmit:
		return dialogue.RatingSubmit{}, nil
	case models.EventLanguage:
		l, err := langpack.ParseLocale(e.Language)
		if err != nil {
			return nil, err
		}
		return dialogue.LanguageChanged{Locale: l}, nil
	case models.EventRestart:
		return dialogue.Restart{}, nil
	case models.EventClear:
		return dialogue.ClearChat{}, nil
	case models.EventBackendResult:
		if env.Result == nil {
			return nil, errors.New("backend result envelope without result")
		}
		return fromResult(env.Result)
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

func toResult(ev dialogue.Event, req dialogue.Request, attempts int) *models.BackendResult {
	res := &models.BackendResult{
		Op:        string(req.Op),
		Epoch:     req.Epoch,
		SessionID: req.SessionID,
		Attempts:  attempts,
	}
	var err error
	switch ev := ev.(type) {
	case dialogue.StatusResult:
		res.Found, res.Message, err = ev.Found, ev.Message, ev.Err
	case dialogue.RatingResult:
		err = ev.Err
	case dialogue.QueryResult:
		res.Reply, err = ev.Reply, ev.Err
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func fromResult(res *models.BackendResult) (dialogue.Event, error) {
	var err error
	if res.Error != "" {
		err = errors.New(res.Error)
	}
	switch dialogue.Operation(res.Op) {
	case dialogue.OpStatusLookup:
		return dialogue.StatusResult{Epoch: res.Epoch, Found: res.Found, Message: res.Message, Err: err}, nil
	case dialogue.OpRatingSubmit:
		return dialogue.RatingResult{Epoch: res.Epoch, Err: err}, nil
	case dialogue.OpQuery:
		return dialogue.QueryResult{Epoch: res.Epoch, Reply: res.Reply, Err: err}, nil
	}
	return nil, fmt.Errorf("unknown backend operation %q", res.Op)
}
