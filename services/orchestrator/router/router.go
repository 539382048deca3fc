// Package router is the orchestrator's single serialization point: it reads
// widget envelopes from the inbound stream one at a time, runs them through
// the dialogue engine and publishes the resulting directives.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"grievancebot/services/models"
	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/session"
)

const (
	defaultGroup    = "orchestrator-group"
	defaultConsumer = "orchestrator-1"
	readBlock       = 5 * time.Second
	enqueueTimeout  = 5 * time.Second
)

// Bus carries frames out to widgets and envelopes back into the stream.
type Bus interface {
	Publish(ctx context.Context, widgetID string, resp models.WSResponse) error
	Enqueue(ctx context.Context, env models.MessageEnvelope) error
}

// Executor performs backend requests issued by the engine.
type Executor interface {
	Execute(ctx context.Context, req dialogue.Request, onRetry func(attempt, limit int)) (dialogue.Event, int)
}

// Readiness reports whether the backend can answer.
type Readiness interface {
	Ready() bool
}

// Option configures a Router.
type Option func(*Router)

// WithConsumer sets the consumer group and consumer name.
func WithConsumer(group, consumer string) Option {
	return func(r *Router) { r.group, r.consumer = group, consumer }
}

// WithDefaultLanguage sets the locale of new sessions.
func WithDefaultLanguage(l langpack.Locale) Option {
	return func(r *Router) { r.defaultLang = l }
}

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.log = l }
}

type Router struct {
	rdb         *redis.Client
	bus         Bus
	engine      *dialogue.Engine
	store       session.Store
	exec        Executor
	ready       Readiness
	group       string
	consumer    string
	defaultLang langpack.Locale
	log         *zap.Logger

	mu       sync.Mutex
	inFlight map[string]*call
	wg       sync.WaitGroup
}

// call is a dispatched backend request. It stays registered until its result
// has been handled, so a session whose call is not registered here has lost it.
type call struct {
	cancel context.CancelFunc
	req    dialogue.Request
}

var errInterrupted = errors.New("backend call interrupted")

// New returns a router. rdb is only needed by ConsumeLoop.
func New(rdb *redis.Client, bus Bus, engine *dialogue.Engine, store session.Store, exec Executor, ready Readiness, opts ...Option) *Router {
	r := &Router{
		rdb:         rdb,
		bus:         bus,
		engine:      engine,
		store:       store,
		exec:        exec,
		ready:       ready,
		group:       defaultGroup,
		consumer:    defaultConsumer,
		defaultLang: langpack.English,
		log:         zap.NewNop(),
		inFlight:    make(map[string]*call),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) EnsureConsumerGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, models.StreamKey, r.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ConsumeLoop reads the stream until ctx is cancelled, then waits for
// outstanding backend calls to wind down.
func (r *Router) ConsumeLoop(ctx context.Context) error {
	r.log.Info("starting consumer loop", zap.String("group", r.group), zap.String("consumer", r.consumer))
	defer r.Wait()
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{models.StreamKey, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) || (err != nil && ctx.Err() != nil) {
			continue
		}
		if err != nil {
			r.log.Error("error reading stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				r.handleMessage(ctx, msg)
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg redis.XMessage) {
	defer r.rdb.XAck(ctx, models.StreamKey, r.group, msg.ID)

	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		r.log.Warn("message without envelope field", zap.String("id", msg.ID))
		return
	}
	var env models.MessageEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.log.Warn("failed to unmarshal envelope", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	if err := r.HandleEnvelope(ctx, env); err != nil {
		r.log.Error("failed to handle envelope",
			zap.String("widget_id", env.WidgetID),
			zap.String("type", env.Event.Type),
			zap.Error(err))
		r.publishError(ctx, env.WidgetID)
	}
}

// HandleEnvelope applies one envelope to its widget's session. It must not
// be called concurrently.
func (r *Router) HandleEnvelope(ctx context.Context, env models.MessageEnvelope) error {
	if env.WidgetID == "" {
		return fmt.Errorf("envelope %s has no widget id", env.MessageID)
	}
	log := r.log.With(zap.String("widget_id", env.WidgetID), zap.String("type", env.Event.Type))

	if env.Event.Type == models.EventClose {
		r.cancel(env.WidgetID)
		log.Debug("widget closed")
		return r.store.Delete(ctx, env.WidgetID)
	}

	rec, err := r.store.Get(ctx, env.WidgetID)
	if err != nil {
		return err
	}

	var directives []dialogue.Directive
	created := rec == nil
	if created {
		lang := r.defaultLang
		if l, err := langpack.ParseLocale(env.Event.Language); err == nil && env.Event.Type == models.EventOpen {
			lang = l
		}
		rec = &session.Record{WidgetID: env.WidgetID, Conversation: dialogue.NewSession(lang)}
		begin := r.engine.Begin(rec.Conversation)
		directives = append(directives, r.engine.ConnectionStatus(lang, r.ready.Ready()))
		directives = append(directives, begin.Directives...)
		log.Info("session started", zap.String("session_id", rec.Conversation.ID))
	}

	if !created && env.Event.Type != models.EventBackendResult && r.orphaned(env.WidgetID, rec.Conversation) {
		log.Warn("settling interrupted backend call", zap.String("op", string(rec.Conversation.InFlight)))
		ev, err := fromResult(interrupted(rec.Conversation))
		if err != nil {
			return err
		}
		directives = append(directives, r.engine.Handle(rec.Conversation, ev).Directives...)
	}

	var req *dialogue.Request
	switch env.Event.Type {
	case models.EventOpen:
		if !created {
			directives = append(directives, r.engine.ConnectionStatus(rec.Conversation.Language, r.ready.Ready()))
		}
	default:
		ev, err := toEvent(env)
		if err != nil {
			log.Warn("dropping event", zap.Error(err))
			break
		}
		res := r.engine.Handle(rec.Conversation, ev)
		if res.CancelInFlight {
			r.cancel(env.WidgetID)
		}
		if env.Result != nil {
			r.settle(env.WidgetID, env.Result)
		}
		directives = append(directives, res.Directives...)
		req = res.Request
	}

	if created {
		err = r.store.Create(ctx, rec)
	} else {
		err = r.store.Update(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if len(directives) > 0 {
		r.publish(ctx, env.WidgetID, rec.Conversation, directives)
	}
	if req != nil {
		r.dispatch(ctx, env.WidgetID, *req)
	}
	return nil
}

// dispatch runs req in the background and feeds its result back through the
// stream. A reset or close of the widget aborts it silently; any other
// interruption still reports a failed result so the session can move on.
func (r *Router) dispatch(ctx context.Context, widgetID string, req dialogue.Request) {
	callCtx, cancel := context.WithCancel(ctx)
	c := &call{cancel: cancel, req: req}

	r.mu.Lock()
	if prev, ok := r.inFlight[widgetID]; ok {
		prev.cancel()
	}
	r.inFlight[widgetID] = c
	r.mu.Unlock()

	log := r.log.With(zap.String("widget_id", widgetID), zap.String("op", string(req.Op)))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		ev, attempts := r.exec.Execute(callCtx, req, func(attempt, limit int) {
			log.Warn("retrying backend call", zap.Int("attempt", attempt), zap.Int("max", limit))
			notice := r.engine.RetryNotice(req.Language, attempt, limit)
			r.publishDirectives(callCtx, widgetID, req.SessionID, "", []dialogue.Directive{notice})
		})
		if callCtx.Err() != nil && ctx.Err() == nil {
			log.Debug("backend call cancelled")
			r.release(widgetID, c)
			return
		}

		var result *models.BackendResult
		if ev == nil || ctx.Err() != nil {
			log.Warn("backend call interrupted")
			result = &models.BackendResult{
				Op:        string(req.Op),
				Epoch:     req.Epoch,
				SessionID: req.SessionID,
				Attempts:  attempts,
				Error:     errInterrupted.Error(),
			}
		} else {
			result = toResult(ev, req, attempts)
		}

		env := models.MessageEnvelope{
			MessageID: uuid.NewString(),
			WidgetID:  widgetID,
			Channel:   "backend",
			Timestamp: time.Now().UTC(),
			Event:     models.ClientEvent{Type: models.EventBackendResult},
			Result:    result,
		}
		enqueueCtx, done := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
		defer done()
		if err := r.bus.Enqueue(enqueueCtx, env); err != nil {
			log.Error("failed to enqueue backend result", zap.Error(err))
			r.release(widgetID, c)
		}
	}()
}

// release forgets c if it is still the widget's registered call.
func (r *Router) release(widgetID string, c *call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[widgetID] == c {
		delete(r.inFlight, widgetID)
	}
}

// settle forgets the call res answers.
func (r *Router) settle(widgetID string, res *models.BackendResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.inFlight[widgetID]; ok && c.req.Epoch == res.Epoch && string(c.req.Op) == res.Op {
		delete(r.inFlight, widgetID)
	}
}

// orphaned reports whether s waits on a call this router no longer tracks,
// as after a restart or a lost result.
func (r *Router) orphaned(widgetID string, s *dialogue.Session) bool {
	if s.InFlight == dialogue.OpNone {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[widgetID]
	return !ok
}

func interrupted(s *dialogue.Session) *models.BackendResult {
	return &models.BackendResult{
		Op:        string(s.InFlight),
		Epoch:     s.Epoch,
		SessionID: s.ID,
		Error:     errInterrupted.Error(),
	}
}

func (r *Router) cancel(widgetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.inFlight[widgetID]; ok {
		c.cancel()
		delete(r.inFlight, widgetID)
	}
}

// Wait blocks until all background calls have returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) publish(ctx context.Context, widgetID string, s *dialogue.Session, ds []dialogue.Directive) {
	r.publishDirectives(ctx, widgetID, s.ID, string(s.State), ds)
}

func (r *Router) publishDirectives(ctx context.Context, widgetID, sessionID, state string, ds []dialogue.Directive) {
	data, err := json.Marshal(ds)
	if err != nil {
		r.log.Error("failed to marshal directives", zap.Error(err))
		return
	}
	resp := models.WSResponse{
		Type:       models.FrameDirectives,
		WidgetID:   widgetID,
		SessionID:  sessionID,
		State:      state,
		Directives: data,
	}
	if err := r.bus.Publish(ctx, widgetID, resp); err != nil {
		r.log.Error("failed to publish response", zap.String("widget_id", widgetID), zap.Error(err))
	}
}

func (r *Router) publishError(ctx context.Context, widgetID string) {
	if widgetID == "" {
		return
	}
	resp := models.WSResponse{
		Type:     models.FrameError,
		WidgetID: widgetID,
		Text:     "Sorry, I'm having trouble responding right now. Please try again.",
	}
	if err := r.bus.Publish(ctx, widgetID, resp); err != nil {
		r.log.Error("failed to publish error", zap.String("widget_id", widgetID), zap.Error(err))
	}
}
