package backend

import (
	"context"

	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/langpack"
)

// Gateway is the subset of Client the engine's requests need.
type Gateway interface {
	Query(ctx context.Context, req QueryRequest) (string, error)
	GrievanceStatus(ctx context.Context, grievanceID string, locale langpack.Locale) (StatusOutcome, error)
	SubmitRating(ctx context.Context, req RatingRequest) error
}

// Executor runs engine requests against a Gateway under a retry policy.
type Executor struct {
	gw    Gateway
	retry Retrier
}

// NewExecutor returns an executor for gw.
func NewExecutor(gw Gateway, retry Retrier) *Executor {
	return &Executor{gw: gw, retry: retry}
}

// Execute performs req and returns the result event to feed back into the
// engine, plus the number of attempts made. Unknown operations yield a nil
// event.
func (x *Executor) Execute(ctx context.Context, req dialogue.Request, onRetry func(attempt, limit int)) (dialogue.Event, int) {
	switch req.Op {
	case dialogue.OpStatusLookup:
		var out StatusOutcome
		n, err := x.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = x.gw.GrievanceStatus(ctx, req.GrievanceID, req.Language)
			return err
		}, onRetry)
		return dialogue.StatusResult{Epoch: req.Epoch, Found: out.Found, Message: out.Message, Err: err}, n

	case dialogue.OpRatingSubmit:
		n, err := x.retry.Do(ctx, func(ctx context.Context) error {
			return x.gw.SubmitRating(ctx, RatingRequest{
				Rating:      req.Rating,
				SessionID:   req.SessionID,
				Language:    string(req.Language),
				GrievanceID: req.GrievanceID,
			})
		}, onRetry)
		return dialogue.RatingResult{Epoch: req.Epoch, Err: err}, n

	case dialogue.OpQuery:
		var reply string
		n, err := x.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			reply, err = x.gw.Query(ctx, QueryRequest{
				InputText: req.Text,
				Language:  string(req.Language),
				SessionID: req.SessionID,
			})
			return err
		}, onRetry)
		return dialogue.QueryResult{Epoch: req.Epoch, Reply: reply, Err: err}, n
	}
	return nil, 0
}
