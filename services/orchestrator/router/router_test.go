package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"grievancebot/services/models"
	"grievancebot/services/orchestrator/backend"
	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/knowledge"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type fakeBus struct {
	mu          sync.Mutex
	frames      []models.WSResponse
	queue       chan models.MessageEnvelope
	failEnqueue atomic.Bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{queue: make(chan models.MessageEnvelope, 8)}
}

func (b *fakeBus) Publish(_ context.Context, _ string, resp models.WSResponse) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, resp)
	return nil
}

func (b *fakeBus) Enqueue(_ context.Context, env models.MessageEnvelope) error {
	if b.failEnqueue.Load() {
		return errors.New("stream unavailable")
	}
	b.queue <- env
	return nil
}

// directives flattens every published directive in order.
func (b *fakeBus) directives(t *testing.T) []dialogue.Directive {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dialogue.Directive
	for _, f := range b.frames {
		var ds []dialogue.Directive
		require.NoError(t, json.Unmarshal(f.Directives, &ds))
		out = append(out, ds...)
	}
	return out
}

func (b *fakeBus) next(t *testing.T) models.MessageEnvelope {
	t.Helper()
	select {
	case env := <-b.queue:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no backend result enqueued")
		return models.MessageEnvelope{}
	}
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func newTestRouter(t *testing.T, h http.HandlerFunc) (*Router, *fakeBus, session.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	catalog := langpack.MustDefault()
	matcher, err := knowledge.Default()
	require.NoError(t, err)
	engine := dialogue.NewEngine(catalog, matcher)

	store, err := session.NewStore(session.StoreTypeMemory)
	require.NoError(t, err)

	client := backend.NewClient(srv.URL, backend.WithHTTPClient(srv.Client()))
	exec := backend.NewExecutor(client, backend.Retrier{MaxRetries: 2, Delay: time.Millisecond})

	bus := newFakeBus()
	r := New(nil, bus, engine, store, exec, readiness(true))
	t.Cleanup(r.Wait)
	return r, bus, store
}

func envelope(widgetID string, ev models.ClientEvent) models.MessageEnvelope {
	return models.MessageEnvelope{MessageID: "m", WidgetID: widgetID, Channel: models.ChannelWeb, Event: ev}
}

func conversation(t *testing.T, store session.Store, widgetID string) *dialogue.Session {
	t.Helper()
	rec, err := store.Get(context.Background(), widgetID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.Conversation
}

func TestOpenStartsSession(t *testing.T) {
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventOpen, Language: "mr"})))

	ds := bus.directives(t)
	require.GreaterOrEqual(t, len(ds), 4)
	assert.Equal(t, dialogue.ShowConnection, ds[0].Kind)
	assert.Equal(t, dialogue.LevelOnline, ds[0].Level)
	assert.Equal(t, dialogue.RenderChrome, ds[1].Kind)
	assert.Equal(t, langpack.Marathi, conversation(t, store, "w1").Language)
	assert.Equal(t, dialogue.StateStart, conversation(t, store, "w1").State)
}

func TestStatusLookupEndToEnd(t *testing.T) {
	var calls atomic.Int32
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/grievance/status/", req.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"found":true,"message":"Grievance ID: G-12safeg7678\nStatus: Resolved"}`))
	})
	ctx := context.Background()

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventOpen})))
	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventText, Text: "G-12safeg7678"})))
	assert.Equal(t, dialogue.StateAwaitingGrievanceID, conversation(t, store, "w1").State)

	result := bus.next(t)
	require.NotNil(t, result.Result)
	assert.Equal(t, 2, result.Result.Attempts)
	require.NoError(t, r.HandleEnvelope(ctx, result))

	s := conversation(t, store, "w1")
	assert.Equal(t, dialogue.StateAwaitingFeedbackChoice, s.State)
	assert.Equal(t, dialogue.OpNone, s.InFlight)

	var retried, status bool
	for _, d := range bus.directives(t) {
		if d.Kind == dialogue.ShowStatus && d.Text == "Retrying... (1/2)" {
			retried = true
		}
		if d.Kind == dialogue.ShowGrievanceStatus {
			status = true
			assert.Len(t, d.Fields, 2)
		}
	}
	assert.True(t, retried, "retry notice published")
	assert.True(t, status, "status rendered")
}

func TestRestartCancelsInFlightCall(t *testing.T) {
	started := make(chan struct{})
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-req.Context().Done()
	})
	ctx := context.Background()

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventText, Text: "9876543210"})))
	<-started
	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventRestart})))
	r.Wait()

	select {
	case env := <-bus.queue:
		t.Fatalf("unexpected result after cancel: %+v", env.Result)
	default:
	}
	s := conversation(t, store, "w1")
	assert.Equal(t, dialogue.StateStart, s.State)
	assert.Equal(t, 1, s.Epoch)
}

func hasStatus(ds []dialogue.Directive, text string) bool {
	for _, d := range ds {
		if d.Kind == dialogue.ShowStatus && d.Text == text {
			return true
		}
	}
	return false
}

func TestLostResultIsSettledOnNextEvent(t *testing.T) {
	var calls atomic.Int32
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"found":true,"message":"Status: Resolved"}`))
	})
	ctx := context.Background()
	pack := langpack.MustDefault().Pack(langpack.English)

	bus.failEnqueue.Store(true)
	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventText, Text: "G-12safeg7678"})))
	r.Wait()
	assert.Equal(t, dialogue.OpStatusLookup, conversation(t, store, "w1").InFlight)

	bus.failEnqueue.Store(false)
	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventText, Text: "G-12safeg7678"})))

	assert.True(t, hasStatus(bus.directives(t), pack.Text(langpack.ErrorProcessing)))
	result := bus.next(t)
	require.NotNil(t, result.Result)
	assert.Empty(t, result.Result.Error)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, r.HandleEnvelope(ctx, result))
	s := conversation(t, store, "w1")
	assert.Equal(t, dialogue.OpNone, s.InFlight)
	assert.Equal(t, dialogue.StateAwaitingFeedbackChoice, s.State)
}

func TestShutdownReportsInterruptedCall(t *testing.T) {
	started := make(chan struct{})
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-req.Context().Done()
	})
	loopCtx, stop := context.WithCancel(context.Background())

	require.NoError(t, r.HandleEnvelope(loopCtx, envelope("w1", models.ClientEvent{Type: models.EventText, Text: "9876543210"})))
	<-started
	stop()

	result := bus.next(t)
	require.NotNil(t, result.Result)
	assert.Equal(t, string(dialogue.OpStatusLookup), result.Result.Op)
	assert.Equal(t, errInterrupted.Error(), result.Result.Error)

	require.NoError(t, r.HandleEnvelope(context.Background(), result))
	s := conversation(t, store, "w1")
	assert.Equal(t, dialogue.OpNone, s.InFlight)
	assert.Equal(t, dialogue.StateAwaitingGrievanceID, s.State)
}

func TestOrphanedCallSettledOnReconnect(t *testing.T) {
	r, bus, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {})
	ctx := context.Background()

	s := dialogue.NewSession(langpack.English)
	s.State = dialogue.StateAwaitingRating
	s.SelectedRating = 4
	s.InFlight = dialogue.OpRatingSubmit
	require.NoError(t, store.Create(ctx, &session.Record{WidgetID: "w1", Conversation: s}))

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventOpen})))

	got := conversation(t, store, "w1")
	assert.Equal(t, dialogue.OpNone, got.InFlight)
	assert.Equal(t, dialogue.StateAwaitingRating, got.State)
	pack := langpack.MustDefault().Pack(langpack.English)
	assert.True(t, hasStatus(bus.directives(t), pack.Text(langpack.RatingFailed)))

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventRatingSubmit})))
	assert.Equal(t, dialogue.OpRatingSubmit, conversation(t, store, "w1").InFlight)
	require.NotNil(t, bus.next(t).Result)
}

func TestStaleResultIgnored(t *testing.T) {
	r, _, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {})
	ctx := context.Background()

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventOpen})))
	stale := envelope("w1", models.ClientEvent{Type: models.EventBackendResult})
	stale.Result = &models.BackendResult{Op: string(dialogue.OpStatusLookup), Epoch: 7, Found: true, Message: "Status: Closed"}
	require.NoError(t, r.HandleEnvelope(ctx, stale))

	assert.Equal(t, dialogue.StateStart, conversation(t, store, "w1").State)
}

func TestCloseDeletesSession(t *testing.T) {
	r, _, store := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {})
	ctx := context.Background()

	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventOpen})))
	require.NoError(t, r.HandleEnvelope(ctx, envelope("w1", models.ClientEvent{Type: models.EventClose})))

	rec, err := store.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRejectsEnvelopeWithoutWidget(t *testing.T) {
	r, _, _ := newTestRouter(t, func(w http.ResponseWriter, req *http.Request) {})
	assert.Error(t, r.HandleEnvelope(context.Background(), envelope("", models.ClientEvent{Type: models.EventText})))
}

func TestToEvent(t *testing.T) {
	tests := []struct {
		ev   models.ClientEvent
		want dialogue.Event
	}{
		{models.ClientEvent{Type: models.EventText, Text: "hi"}, dialogue.UserText{Text: "hi"}},
		{models.ClientEvent{Type: models.EventOption, Index: 1}, dialogue.OptionChosen{Index: 1}},
		{models.ClientEvent{Type: models.EventSuggestion, Key: "status"}, dialogue.SuggestionChosen{Key: "status"}},
		{models.ClientEvent{Type: models.EventRating, Rating: 4}, dialogue.RatingChosen{Value: 4}},
		{models.ClientEvent{Type: models.EventRatingSubmit}, dialogue.RatingSubmit{}},
		{models.ClientEvent{Type: models.EventLanguage, Language: "HI"}, dialogue.LanguageChanged{Locale: langpack.Hindi}},
		{models.ClientEvent{Type: models.EventRestart}, dialogue.Restart{}},
		{models.ClientEvent{Type: models.EventClear}, dialogue.ClearChat{}},
	}
	for _, tt := range tests {
		got, err := toEvent(envelope("w", tt.ev))
		require.NoError(t, err, tt.ev.Type)
		assert.Equal(t, tt.want, got)
	}

	_, err := toEvent(envelope("w", models.ClientEvent{Type: "dance"}))
	assert.Error(t, err)
	_, err = toEvent(envelope("w", models.ClientEvent{Type: models.EventLanguage, Language: "fr"}))
	assert.Error(t, err)
	_, err = toEvent(envelope("w", models.ClientEvent{Type: models.EventBackendResult}))
	assert.Error(t, err)
}

func TestResultRoundTripKeepsError(t *testing.T) {
	req := dialogue.Request{Op: dialogue.OpRatingSubmit, Epoch: 4, SessionID: "s"}
	res := toResult(dialogue.RatingResult{Epoch: 4, Err: backend.ErrTransient}, req, 3)
	assert.Equal(t, 3, res.Attempts)

	ev, err := fromResult(res)
	require.NoError(t, err)
	rr, ok := ev.(dialogue.RatingResult)
	require.True(t, ok)
	assert.Equal(t, 4, rr.Epoch)
	assert.EqualError(t, rr.Err, backend.ErrTransient.Error())
}
