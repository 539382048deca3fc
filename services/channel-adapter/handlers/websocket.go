package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grievancebot/services/channel-adapter/adapters"
	"grievancebot/services/models"
)

var widgetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

type WSHandler struct {
	rdb            *redis.Client
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
	log            *zap.Logger
}

func NewWSHandler(rdb *redis.Client, allowedOrigins []string, log *zap.Logger) *WSHandler {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	h := &WSHandler{rdb: rdb, allowedOrigins: origins, log: log}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return h.allowedOrigins[origin]
}

// widgetID returns the client supplied id when well formed, or a new one.
func widgetID(r *http.Request) string {
	if id := r.URL.Query().Get("widget_id"); widgetIDPattern.MatchString(id) {
		return id
	}
	return uuid.New().String()
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	id := widgetID(r)
	log := h.log.With(zap.String("widget_id", id))

	if err := c.writeJSON(models.WSResponse{Type: models.FrameConnected, WidgetID: id}); err != nil {
		log.Warn("failed to send connected frame", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pubsub := h.rdb.Subscribe(ctx, models.ResponseChannel(id))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error("failed to subscribe", zap.Error(err))
		return
	}

	// The orchestrator keeps working state per widget; tell it when the
	// socket goes away whatever the reason.
	defer func() {
		if err := h.enqueue(context.WithoutCancel(ctx), adapters.CloseEnvelope(id)); err != nil {
			log.Warn("failed to enqueue close", zap.Error(err))
		}
	}()

	if err := h.enqueue(ctx, adapters.OpenEnvelope(id, r.URL.Query().Get("lang"))); err != nil {
		log.Error("failed to enqueue open", zap.Error(err))
		_ = c.writeJSON(models.WSResponse{Type: models.FrameError, Text: "Service unavailable. Please try again later."})
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer ws.Close() // unblocks read
		return h.forward(ctx, c, pubsub)
	})
	g.Go(func() error {
		defer cancel()
		return h.read(ctx, c, id, log)
	})
	if err := g.Wait(); err != nil {
		log.Debug("widget connection ended", zap.Error(err))
	}
}

// forward relays orchestrator frames from pub/sub to the socket.
func (h *WSHandler) forward(ctx context.Context, c *conn, pubsub *redis.PubSub) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var resp models.WSResponse
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				h.log.Warn("failed to unmarshal response", zap.Error(err))
				continue
			}
			if err := c.writeJSON(resp); err != nil {
				return err
			}
		}
	}
}

// read publishes widget frames to the inbound stream until the socket closes.
func (h *WSHandler) read(ctx context.Context, c *conn, id string, log *zap.Logger) error {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return nil
		}

		var incoming models.WSIncoming
		if err := json.Unmarshal(message, &incoming); err != nil {
			_ = c.writeJSON(models.WSResponse{
				Type: models.FrameError,
				Text: "Invalid message format. Send JSON with a 'type' field.",
			})
			continue
		}

		env, err := adapters.NormalizeWebMessage(id, incoming)
		if err != nil {
			if !errors.Is(err, adapters.ErrEmptyMessage) {
				log.Debug("rejected frame", zap.Error(err))
			}
			continue
		}
		if err := h.enqueue(ctx, env); err != nil {
			log.Error("failed to publish to stream", zap.Error(err))
			_ = c.writeJSON(models.WSResponse{
				Type: models.FrameError,
				Text: "Sorry, I'm having trouble processing your message. Please try again.",
			})
		}
	}
}

func (h *WSHandler) enqueue(ctx context.Context, env models.MessageEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: models.StreamKey,
		Values: map[string]interface{}{"envelope": string(data)},
	}).Err()
}
