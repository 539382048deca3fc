// Package dialogue implements the grievance assistant's conversation engine:
// a finite-state controller that maps a session and an event to a new state,
// a list of render directives and at most one backend request.
//
// The engine does no I/O. Backend calls are returned as a Request and their
// outcome comes back in as a result event, so every state change goes
// through Handle.
package dialogue

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"grievancebot/services/orchestrator/knowledge"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/statusfmt"
	"grievancebot/services/orchestrator/validate"
)

const (
	defaultFollowUpDelay = 800 * time.Millisecond

	// ratingNotAvailable is sent as the grievance id of a rating given
	// without a prior status lookup.
	ratingNotAvailable = "NA"
)

// SuggestionSource supplies the quick replies offered for a locale.
type SuggestionSource interface {
	Suggestions(locale langpack.Locale) []langpack.Suggestion
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackendQuery sends unmatched free text to the answer service before
// falling back to the suggestion menu.
func WithBackendQuery(enabled bool) Option {
	return func(e *Engine) { e.askBackend = enabled }
}

// WithSuggestionSource overrides the language pack suggestions.
func WithSuggestionSource(src SuggestionSource) Option {
	return func(e *Engine) { e.suggestions = src }
}

// WithFollowUpDelay sets the pause between consecutive bot messages.
func WithFollowUpDelay(d time.Duration) Option {
	return func(e *Engine) { e.followUp = d }
}

// WithIDGenerator sets how new session ids are made.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock sets the transcript clock.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// Engine is the dialogue state machine. It holds only immutable tables and
// is safe to share between sessions.
type Engine struct {
	catalog     *langpack.Catalog
	matcher     *knowledge.Matcher
	suggestions SuggestionSource
	askBackend  bool
	followUp    time.Duration
	newID       func() string
	now         func() time.Time
}

// NewEngine builds an engine over a language catalog and knowledge matcher.
func NewEngine(catalog *langpack.Catalog, matcher *knowledge.Matcher, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		matcher:  matcher,
		followUp: defaultFollowUpDelay,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.suggestions == nil {
		e.suggestions = packSuggestions{catalog}
	}
	return e
}

type packSuggestions struct{ catalog *langpack.Catalog }

func (p packSuggestions) Suggestions(l langpack.Locale) []langpack.Suggestion {
	return p.catalog.Pack(l).Suggestions
}

// turn accumulates the output of one Handle call.
type turn struct {
	e      *Engine
	s      *Session
	pack   *langpack.Pack
	out    []Directive
	req    *Request
	cancel bool
}

func (e *Engine) newTurn(s *Session) *turn {
	return &turn{e: e, s: s, pack: e.catalog.Pack(s.Language)}
}

func (t *turn) result() Result {
	return Result{State: t.s.State, Directives: t.out, Request: t.req, CancelInFlight: t.cancel}
}

// emit appends d, delaying it if a bot bubble was already rendered this turn.
func (t *turn) emit(d Directive) {
	if bubble(d.Kind) {
		for _, prev := range t.out {
			if bubble(prev.Kind) {
				d.DelayMS = t.e.followUp.Milliseconds()
				break
			}
		}
		t.s.record(AuthorBot, d.Text, t.e.now())
	}
	t.out = append(t.out, d)
}

func bubble(k DirectiveKind) bool {
	switch k {
	case ShowMessage, ShowOptions, ShowGrievanceStatus, ShowRatingWidget:
		return true
	}
	return false
}

func (t *turn) say(key langpack.Key) {
	t.emit(Directive{Kind: ShowMessage, Text: t.pack.Text(key)})
}

func (t *turn) ask(key langpack.Key) {
	t.emit(Directive{Kind: ShowOptions, Text: t.pack.Text(key), Options: t.pack.Options()})
}

func (t *turn) status(level, text string) {
	t.out = append(t.out, Directive{Kind: ShowStatus, Level: level, Text: text})
}

func (t *turn) offerSuggestions(key langpack.Key) {
	t.say(key)
	t.out = append(t.out, Directive{
		Kind:        ShowSuggestions,
		Text:        t.pack.Text(langpack.SuggestionsLabel),
		Suggestions: t.e.suggestions.Suggestions(t.s.Language),
	})
}

func (t *turn) chrome() {
	t.out = append(t.out, Directive{Kind: RenderChrome, Chrome: &Chrome{
		Language:         t.pack.Locale,
		LanguageName:     t.pack.Name,
		Placeholder:      t.pack.Text(langpack.Placeholder),
		ClearChat:        t.pack.Text(langpack.ClearChatLabel),
		NewSession:       t.pack.Text(langpack.NewSessionLabel),
		SuggestionsLabel: t.pack.Text(langpack.SuggestionsLabel),
	}})
}

func (t *turn) request(r Request) {
	r.Epoch = t.s.Epoch
	r.SessionID = t.s.ID
	r.Language = t.s.Language
	t.s.InFlight = r.Op
	t.req = &r
	t.out = append(t.out, Directive{Kind: ShowTyping})
}

// Begin renders the opening of a conversation: widget chrome, the welcome
// message and the registration question.
func (e *Engine) Begin(s *Session) Result {
	t := e.newTurn(s)
	t.chrome()
	t.begin()
	return t.result()
}

func (t *turn) begin() {
	t.s.State = StateStart
	t.say(langpack.Welcome)
	t.ask(langpack.StartQuestion)
}

// Handle applies ev to s. Events that have no meaning in the current state
// leave the session untouched and produce no directives.
func (e *Engine) Handle(s *Session, ev Event) Result {
	t := e.newTurn(s)
	switch ev := ev.(type) {
	case UserText:
		t.onText(ev.Text)
	case OptionChosen:
		t.onOption(ev.Index)
	case SuggestionChosen:
		t.onSuggestion(ev.Key)
	case RatingChosen:
		t.onRatingChosen(ev.Value)
	case RatingSubmit:
		t.onRatingSubmit()
	case LanguageChanged:
		t.onLanguage(ev.Locale)
	case Restart:
		t.restart(false)
	case ClearChat:
		t.restart(true)
	case StatusResult:
		t.onStatusResult(ev)
	case RatingResult:
		t.onRatingResult(ev)
	case QueryResult:
		t.onQueryResult(ev)
	}
	return t.result()
}

// RetryNotice is the status shown before a backend call is retried.
func (e *Engine) RetryNotice(l langpack.Locale, attempt, limit int) Directive {
	return Directive{
		Kind:  ShowStatus,
		Level: LevelInfo,
		Text: e.catalog.Pack(l).Text(langpack.Retrying,
			"attempt", strconv.Itoa(attempt), "max", strconv.Itoa(limit)),
	}
}

// ConnectionStatus renders the backend readiness indicator.
func (e *Engine) ConnectionStatus(l langpack.Locale, ready bool) Directive {
	p := e.catalog.Pack(l)
	if ready {
		return Directive{Kind: ShowConnection, Level: LevelOnline, Text: p.Text(langpack.ConnectionOnline)}
	}
	return Directive{Kind: ShowConnection, Level: LevelOffline, Text: p.Text(langpack.ConnectionOffline)}
}

func (t *turn) onText(raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		t.say(langpack.EmptyInput)
		return
	}
	t.s.record(AuthorUser, text, t.e.now())
	folded := fold(text)

	if t.s.State.awaitsOption() {
		if idx, ok := answer(t.pack, folded); ok {
			t.onOption(idx)
			return
		}
	}
	if id := validate.Classify(text); id.Valid() {
		t.lookup(id)
		return
	}
	if t.s.InFlight == OpStatusLookup || t.s.InFlight == OpRatingSubmit {
		// Results of these calls apply to the state they were issued in.
		t.whileBusy(text, folded)
		return
	}
	if t.s.State == StateAwaitingGrievanceID {
		// A citizen without an identifier can decline and move on.
		if idx, ok := answer(t.pack, folded); ok {
			if idx == 1 {
				t.askFeedback()
			} else {
				t.askGrievanceID()
			}
			return
		}
	}
	if isGreeting(t.pack, folded) {
		t.offerSuggestions(langpack.GreetingReply)
		return
	}
	switch detectIntent(t.pack, folded) {
	case intentStatus:
		t.askGrievanceID()
		return
	case intentRegister:
		t.s.State = StateAwaitingRegisterChoice
		t.ask(langpack.StartQuestion)
		return
	case intentFeedback:
		t.showRating()
		return
	}
	if reply, ok := t.e.matcher.Match(text, t.s.Language); ok {
		t.emit(Directive{Kind: ShowMessage, Text: reply})
		return
	}
	if t.s.State == StateAwaitingGrievanceID {
		t.say(langpack.InvalidGrievance)
		return
	}
	if t.e.askBackend && t.s.InFlight == OpNone {
		t.request(Request{Op: OpQuery, Text: text})
		return
	}
	t.offerSuggestions(langpack.UnknownQuestion)
}

func (t *turn) whileBusy(text, folded string) {
	if isGreeting(t.pack, folded) {
		t.offerSuggestions(langpack.GreetingReply)
		return
	}
	if reply, ok := t.e.matcher.Match(text, t.s.Language); ok {
		t.emit(Directive{Kind: ShowMessage, Text: reply})
		return
	}
	t.busy()
}

func (t *turn) onSuggestion(key string) {
	for _, sg := range t.e.suggestions.Suggestions(t.s.Language) {
		if sg.Key == key {
			t.onText(sg.Text)
			return
		}
	}
	// Pack and remote suggestion keys differ, so a stale click can miss.
	t.offerSuggestions(langpack.UnknownQuestion)
}

func (t *turn) onOption(idx int) {
	if idx != 0 && idx != 1 {
		return
	}
	yes := idx == 0
	switch t.s.State {
	case StateStart, StateAwaitingRegisterChoice:
		if yes {
			t.register()
			return
		}
		t.s.State = StateAwaitingStatusChoice
		t.ask(langpack.StatusQuestion)
	case StateAwaitingStatusChoice:
		if yes {
			t.askGrievanceID()
			return
		}
		t.askFeedback()
	case StateAwaitingFeedbackChoice:
		if yes {
			t.showRating()
			return
		}
		t.say(langpack.ThankYou)
		t.s.State = StateEnd
	}
}

func (t *turn) register() {
	t.emit(Directive{
		Kind:  ShowMessage,
		Text:  t.pack.Text(langpack.RegistrationIntro),
		Links: t.pack.RegistrationLinks,
	})
	t.say(langpack.ThankYou)
	t.s.State = StateEnd
}

func (t *turn) askGrievanceID() {
	t.s.State = StateAwaitingGrievanceID
	t.say(langpack.AskGrievanceID)
}

func (t *turn) askFeedback() {
	t.s.State = StateAwaitingFeedbackChoice
	t.ask(langpack.FeedbackQuestion)
}

func (t *turn) showRating() {
	labels := make([]string, 0, 5)
	for n := 1; n <= 5; n++ {
		labels = append(labels, t.pack.RatingLabels[n])
	}
	t.s.State = StateAwaitingRating
	t.s.SelectedRating = 0
	t.emit(Directive{
		Kind:         ShowRatingWidget,
		Text:         t.pack.Text(langpack.RatingPrompt),
		RatingLabels: labels,
		SubmitLabel:  t.pack.Text(langpack.RatingSubmit),
	})
}

// busy reports whether a backend call is outstanding, telling the citizen
// to wait if so.
func (t *turn) busy() bool {
	if t.s.InFlight == OpNone {
		return false
	}
	t.status(LevelInfo, t.pack.Text(langpack.RequestPending))
	return true
}

func (t *turn) lookup(id validate.Identifier) {
	if t.busy() {
		return
	}
	t.s.State = StateAwaitingGrievanceID
	t.s.PendingGrievanceID = id.Value
	t.say(langpack.LookingUp)
	t.request(Request{Op: OpStatusLookup, GrievanceID: id.Value})
}

// settle clears the outstanding operation if r answers it.
func (t *turn) settle(op Operation, epoch int) bool {
	if epoch != t.s.Epoch || t.s.InFlight != op {
		return false
	}
	t.s.InFlight = OpNone
	return true
}

func (t *turn) onStatusResult(r StatusResult) {
	if !t.settle(OpStatusLookup, r.Epoch) {
		return
	}
	if r.Err != nil {
		t.s.PendingGrievanceID = ""
		t.status(LevelError, t.pack.Text(langpack.ErrorProcessing))
		t.askGrievanceID()
		return
	}
	if !r.Found {
		t.s.PendingGrievanceID = ""
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			msg = t.pack.Text(langpack.StatusNotFound)
		}
		t.emit(Directive{Kind: ShowMessage, Text: msg})
		t.askGrievanceID()
		return
	}

	if fields := statusfmt.Format(r.Message); len(fields) > 0 {
		t.emit(Directive{Kind: ShowGrievanceStatus, Text: t.pack.Text(langpack.StatusHeader), Fields: fields})
	} else {
		t.emit(Directive{Kind: ShowMessage, Text: r.Message})
	}
	t.askFeedback()
}

func (t *turn) onRatingChosen(v int) {
	if t.s.State != StateAwaitingRating || v < 1 || v > 5 {
		return
	}
	t.s.SelectedRating = v
	if t.s.InFlight == OpRatingSubmit {
		return
	}
	t.out = append(t.out, Directive{Kind: EnableSubmit, Rating: v, Text: t.pack.RatingLabels[v]})
}

func (t *turn) onRatingSubmit() {
	if t.s.State != StateAwaitingRating || t.s.SelectedRating == 0 || t.busy() {
		return
	}
	grievanceID := t.s.PendingGrievanceID
	if grievanceID == "" {
		grievanceID = ratingNotAvailable
	}
	t.out = append(t.out, Directive{Kind: DisableSubmit, Rating: t.s.SelectedRating})
	t.request(Request{Op: OpRatingSubmit, Rating: t.s.SelectedRating, GrievanceID: grievanceID})
}

func (t *turn) onRatingResult(r RatingResult) {
	if !t.settle(OpRatingSubmit, r.Epoch) {
		return
	}
	if r.Err != nil {
		t.status(LevelError, t.pack.Text(langpack.RatingFailed))
		t.out = append(t.out, Directive{
			Kind:   EnableSubmit,
			Rating: t.s.SelectedRating,
			Text:   t.pack.RatingLabels[t.s.SelectedRating],
		})
		return
	}
	t.say(langpack.RatingThanks)
	t.say(langpack.ThankYou)
	t.s.State = StateEnd
}

func (t *turn) onQueryResult(r QueryResult) {
	if !t.settle(OpQuery, r.Epoch) {
		return
	}
	reply := strings.TrimSpace(r.Reply)
	switch {
	case r.Err != nil:
		t.status(LevelError, t.pack.Text(langpack.ErrorProcessing))
		t.offerSuggestions(langpack.UnknownQuestion)
	case reply == "":
		t.offerSuggestions(langpack.UnknownQuestion)
	default:
		t.emit(Directive{Kind: ShowMessage, Text: reply})
	}
}

func (t *turn) onLanguage(l langpack.Locale) {
	if !t.e.catalog.Has(l) || l == t.s.Language {
		return
	}
	restart := t.s.HasMessages()
	t.s.Language = l
	t.pack = t.e.catalog.Pack(l)
	t.chrome()
	t.status(LevelInfo, t.pack.Text(langpack.LanguageSwitched, "language", t.pack.Name))
	if restart {
		t.cancel = t.s.reset()
		t.out = append(t.out, Directive{Kind: ClearTranscript})
		t.begin()
	}
}

func (t *turn) restart(newID bool) {
	t.cancel = t.s.reset()
	t.out = append(t.out, Directive{Kind: ClearTranscript})
	if newID {
		t.s.ID = t.e.newID()
		t.status(LevelSuccess, t.pack.Text(langpack.ChatCleared))
	} else {
		t.status(LevelSuccess, t.pack.Text(langpack.SessionStarted))
	}
	t.begin()
}
