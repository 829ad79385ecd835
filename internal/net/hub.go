package net

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"LessonBoard/internal/protocol"
	"LessonBoard/internal/state"
)

// StrokeStore is the hub's durable copy of each room's committed strokes.
type StrokeStore interface {
	SaveStroke(ctx context.Context, room string, s state.Stroke) error
	DeleteStroke(ctx context.Context, room, id string) error
	ClearStrokes(ctx context.Context, room, owner string) (int64, error)
	ListStrokes(ctx context.Context, room string) ([]state.Stroke, error)
}

// Hub relays room messages between websocket peers. Every publish is
// validated, applied to the store and then broadcast to all subscribers of
// the matching topic, the sender included.
type Hub struct {
	store    StrokeStore
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[*peer]struct{}
	topics map[string]map[*peer]struct{}
}

type peer struct {
	conn    *websocket.Conn
	addr    string
	writeMu sync.Mutex
	// guarded by Hub.mu
	topics map[string]struct{}
}

func (p *peer) send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// NewHub returns a hub persisting to store. A nil store relays only.
func NewHub(store StrokeStore, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		store: store,
		log:   log.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		peers:  make(map[*peer]struct{}),
		topics: make(map[string]map[*peer]struct{}),
	}
}

func (h *Hub) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			h.log.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(h.serveWS)
	r.Methods(http.MethodGet).Path("/api/rooms/{room}/strokes").HandlerFunc(h.getStrokes)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "text/plain")
		_, _ = writer.Write([]byte("ok\n"))
	})
	return r
}

func (h *Hub) serveWS(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.log.Error("failed to upgrade", "err", err)
		return
	}
	p := &peer{conn: conn, addr: request.RemoteAddr, topics: make(map[string]struct{})}
	h.add(p)
	defer h.remove(p)

	ctx := context.WithoutCancel(request.Context())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Info("peer disconnected", "addr", p.addr, "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Warn("dropping undecodable frame", "addr", p.addr, "err", err)
			continue
		}
		switch f.Op {
		case OpSubscribe:
			if _, _, ok := protocol.ParseTopicChannel(f.Channel); !ok {
				h.log.Warn("refusing subscription", "addr", p.addr, "channel", f.Channel)
				continue
			}
			h.subscribe(p, f.Channel)
		case OpUnsubscribe:
			h.unsubscribe(p, f.Channel)
		case OpPublish:
			if err := h.Publish(ctx, f.Channel, f.Payload); err != nil {
				h.log.Warn("dropping publish", "addr", p.addr, "channel", f.Channel, "err", err)
			}
		default:
			h.log.Warn("dropping frame with unknown op", "addr", p.addr, "op", f.Op)
		}
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
	h.log.Info("peer connected", "addr", p.addr)
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	for topic := range p.topics {
		h.dropLocked(p, topic)
	}
	h.mu.Unlock()
	_ = p.conn.Close()
	h.log.Info("peer removed", "addr", p.addr)
}

func (h *Hub) subscribe(p *peer, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*peer]struct{})
		h.topics[topic] = subs
	}
	subs[p] = struct{}{}
	p.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribe(p *peer, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(p, topic)
}

func (h *Hub) dropLocked(p *peer, topic string) {
	delete(p.topics, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, p)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers counts the peers subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish handles a payload sent to a room send channel. Rejected payloads
// are neither stored nor relayed.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	room, kind, ok := protocol.ParseSendChannel(channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnroutable, channel)
	}
	m, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	if m.Kind() != kind {
		return fmt.Errorf("%w: %s on the %s channel", protocol.ErrMalformed, m.Kind(), kind)
	}
	h.persist(ctx, room, m)
	h.Broadcast(protocol.TopicChannel(room, kind), payload)
	return nil
}

// persist failures are logged; the message is relayed regardless.
func (h *Hub) persist(ctx context.Context, room string, m protocol.Message) {
	if h.store == nil {
		return
	}
	var err error
	switch m := m.(type) {
	case *protocol.StrokeMessage:
		err = h.store.SaveStroke(ctx, room, m.Stroke)
	case *protocol.UndoMessage:
		err = h.store.DeleteStroke(ctx, room, m.ID)
	case *protocol.ClearMessage:
		var n int64
		n, err = h.store.ClearStrokes(ctx, room, m.Owner)
		if err == nil {
			h.log.Info("cleared strokes", "room", room, "owner", m.Owner, "count", n)
		}
	}
	if err != nil {
		h.log.Error("failed to persist message", "room", room, "type", m.Kind(), "err", err)
	}
}

// Broadcast delivers payload to every subscriber of topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	data, err := json.Marshal(Frame{Op: OpMessage, Channel: topic, Payload: payload})
	if err != nil {
		h.log.Error("failed to encode frame", "topic", topic, "err", err)
		return
	}
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.topics[topic]))
	for p := range h.topics[topic] {
		targets = append(targets, p)
	}
	h.mu.RUnlock()
	for _, p := range targets {
		if err := p.send(data); err != nil {
			h.log.Warn("failed to deliver", "addr", p.addr, "topic", topic, "err", err)
		}
	}
}

func (h *Hub) getStrokes(writer http.ResponseWriter, request *http.Request) {
	room := mux.Vars(request)["room"]
	strokes := []state.Stroke{}
	if h.store != nil {
		var err error
		if strokes, err = h.store.ListStrokes(request.Context(), room); err != nil {
			h.log.Error("failed to list strokes", "room", room, "err", err)
			writer.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(strokes); err != nil {
		h.log.Error("failed to write out", "err", err)
	}
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	for _, p := range peers {
		_ = p.conn.Close()
	}
}
