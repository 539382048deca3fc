package dialogue

// State is the active step of a conversation.
type State string

const (
	StateStart                  State = "start"
	StateAwaitingRegisterChoice State = "awaiting_register_choice"
	StateAwaitingStatusChoice   State = "awaiting_status_choice"
	StateAwaitingGrievanceID    State = "awaiting_grievance_id"
	StateAwaitingFeedbackChoice State = "awaiting_feedback_choice"
	StateAwaitingRating         State = "awaiting_rating"
	StateEnd                    State = "end"
)

// States lists every state in flow order.
var States = []State{
	StateStart,
	StateAwaitingRegisterChoice,
	StateAwaitingStatusChoice,
	StateAwaitingGrievanceID,
	StateAwaitingFeedbackChoice,
	StateAwaitingRating,
	StateEnd,
}

// awaitsOption reports whether the state is waiting on a yes/no answer.
func (s State) awaitsOption() bool {
	switch s {
	case StateStart, StateAwaitingRegisterChoice, StateAwaitingStatusChoice, StateAwaitingFeedbackChoice:
		return true
	}
	return false
}

// Operation names a backend call the engine can have outstanding.
type Operation string

const (
	OpNone         Operation = ""
	OpStatusLookup Operation = "status_lookup"
	OpRatingSubmit Operation = "rating_submit"
	OpQuery        Operation = "query"
)
