package langpack

// Key names a string in a Pack.
type Key string

const (
	Welcome           Key = "welcome"
	StartQuestion     Key = "start_question"
	OptionYes         Key = "option_yes"
	OptionNo          Key = "option_no"
	RegistrationIntro Key = "registration_intro"
	ThankYou          Key = "thank_you"
	StatusQuestion    Key = "status_question"
	AskGrievanceID    Key = "ask_grievance_id"
	InvalidGrievance  Key = "invalid_grievance_id"
	LookingUp         Key = "looking_up"
	StatusHeader      Key = "status_header"
	StatusNotFound    Key = "status_not_found"
	FeedbackQuestion  Key = "feedback_question"
	RatingPrompt      Key = "rating_prompt"
	RatingSubmit      Key = "rating_submit"
	RatingThanks      Key = "rating_thanks"
	RatingFailed      Key = "rating_failed"
	GreetingReply     Key = "greeting_reply"
	UnknownQuestion   Key = "unknown_question"
	SuggestionsLabel  Key = "suggestions_label"
	Placeholder       Key = "placeholder"
	ClearChatLabel    Key = "clear_chat"
	NewSessionLabel   Key = "new_session"
	ConnectionOnline  Key = "connection_online"
	ConnectionOffline Key = "connection_offline"
	Retrying          Key = "retrying"
	ErrorProcessing   Key = "error_processing"
	EmptyInput        Key = "empty_input"
	LanguageSwitched  Key = "language_switched"
	ChatCleared       Key = "chat_cleared"
	SessionStarted    Key = "session_started"
	RequestPending    Key = "request_pending"
)

// RequiredKeys must be present and non-empty in every locale.
var RequiredKeys = []Key{
	Welcome, StartQuestion, OptionYes, OptionNo, RegistrationIntro, ThankYou,
	StatusQuestion, AskGrievanceID, InvalidGrievance, LookingUp, StatusHeader,
	StatusNotFound, FeedbackQuestion, RatingPrompt, RatingSubmit, RatingThanks,
	RatingFailed, GreetingReply, UnknownQuestion, SuggestionsLabel, Placeholder,
	ClearChatLabel, NewSessionLabel, ConnectionOnline, ConnectionOffline, Retrying,
	ErrorProcessing, EmptyInput, LanguageSwitched, ChatCleared, SessionStarted,
	RequestPending,
}
