package net

import (
	"context"
	stdnet "net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LessonBoard/internal/protocol"
	"LessonBoard/internal/state"
	"LessonBoard/internal/storage"
)

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (i *inbox) handler(t *testing.T) Handler {
	return func(payload []byte) {
		m, err := protocol.Decode(payload)
		assert.NoError(t, err)
		i.mu.Lock()
		i.msgs = append(i.msgs, m)
		i.mu.Unlock()
	}
}

func (i *inbox) all() []protocol.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]protocol.Message(nil), i.msgs...)
}

func encode(t *testing.T, m protocol.Message) []byte {
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	return data
}

func testStroke(id, owner string) state.Stroke {
	return state.Stroke{
		ID:        id,
		Points:    []state.Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}},
		Color:     "#000000",
		Width:     2,
		Tool:      state.ToolPen,
		Timestamp: 100,
		Owner:     owner,
	}
}

type hubFixture struct {
	hub   *Hub
	store *storage.SQLStore
	srv   *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	store, err := storage.OpenSQLStore(filepath.Join(t.TempDir(), "hub.sqlite3"), nil)
	require.NoError(t, err)
	hub := NewHub(store, nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		_ = store.Close()
	})
	return &hubFixture{hub: hub, store: store, srv: srv}
}

func (f *hubFixture) client(t *testing.T) *Client {
	c, err := NewClient(f.srv.URL, ClientOptions{ReconnectInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestHubRelaysAndPersists(t *testing.T) {
	f := newHubFixture(t)
	sender, receiver := f.client(t), f.client(t)

	var got inbox
	for _, k := range protocol.Kinds {
		receiver.Subscribe(protocol.TopicChannel("r1", k), got.handler(t))
	}
	require.Eventually(t, func() bool {
		return sender.Connected() && f.hub.Subscribers(protocol.TopicChannel("r1", protocol.KindUndo)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s1, s2 := testStroke("s1", "A"), testStroke("s2", "B")
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindStroke), encode(t, &protocol.StrokeMessage{Stroke: s1})))
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindStroke), encode(t, &protocol.StrokeMessage{Stroke: s2})))
	// malformed and mismatched payloads are dropped
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindStroke), []byte(`{"type":"STROKE"}`)))
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindStroke), encode(t, &protocol.ClearMessage{})))
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindDelta), encode(t, &protocol.DeltaMessage{Delta: state.Delta{StrokeID: "s3", Points: []state.Point{{X: 0, Y: 0}}}})))
	require.NoError(t, sender.Publish(protocol.SendChannel("r1", protocol.KindUndo), encode(t, &protocol.UndoMessage{ID: "s1", Owner: "A"})))

	require.Eventually(t, func() bool { return len(got.all()) == 4 }, 2*time.Second, 10*time.Millisecond)
	msgs := got.all()
	assert.Equal(t, &protocol.StrokeMessage{Stroke: s1}, msgs[0])
	assert.Equal(t, &protocol.StrokeMessage{Stroke: s2}, msgs[1])
	assert.Equal(t, protocol.KindDelta, msgs[2].Kind())
	assert.Equal(t, &protocol.UndoMessage{ID: "s1", Owner: "A"}, msgs[3])

	stored, err := f.store.ListStrokes(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []state.Stroke{s2}, stored)

	hc, err := NewHydrationClient(f.srv.URL, nil)
	require.NoError(t, err)
	hydrated, err := hc.FetchStrokes(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []state.Stroke{s2}, hydrated)

	empty, err := hc.FetchStrokes(context.Background(), "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHubClearIsOwnerScoped(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	for _, s := range []state.Stroke{testStroke("a1", "A"), testStroke("b1", "B"), testStroke("a2", "A")} {
		require.NoError(t, f.hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindStroke), encode(t, &protocol.StrokeMessage{Stroke: s})))
	}
	require.NoError(t, f.hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{Owner: "A"})))

	stored, err := f.store.ListStrokes(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b1", stored[0].ID)

	require.NoError(t, f.hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{})))
	stored, err = f.store.ListStrokes(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestHubPublishRejects(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx := context.Background()

	err := hub.Publish(ctx, "/app/room/r1/chat", encode(t, &protocol.ClearMessage{}))
	assert.ErrorIs(t, err, ErrUnroutable)

	err = hub.Publish(ctx, protocol.TopicChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{}))
	assert.ErrorIs(t, err, ErrUnroutable)

	err = hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindUndo), []byte(`{"type":"UNDO"}`))
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	err = hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindUndo), encode(t, &protocol.ClearMessage{}))
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	err = hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindDelta),
		[]byte(`{"type":"STROKE_DELTA","strokeId":"x","points":[{"x":0,"y":0}],"startIndex":9223372036854775807,"ownerId":"A"}`))
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	assert.NoError(t, hub.Publish(ctx, protocol.SendChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{})))
}

func TestHubHealthAndRelayOnlyHydration(t *testing.T) {
	srv := httptest.NewServer(NewHub(nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	hc, err := NewHydrationClient(srv.URL, nil)
	require.NoError(t, err)
	strokes, err := hc.FetchStrokes(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, strokes)
}

func TestHydrationClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hc, err := NewHydrationClient(srv.URL, nil)
	require.NoError(t, err)
	_, err = hc.FetchStrokes(context.Background(), "r1")
	assert.Error(t, err)
}

func TestClientOfflineAndUnsubscribe(t *testing.T) {
	f := newHubFixture(t)
	c, err := NewClient(f.srv.URL, ClientOptions{ReconnectInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Publish(protocol.SendChannel("r1", protocol.KindClear), []byte(`{"type":"CLEAR"}`)), ErrNotConnected)

	topic := protocol.TopicChannel("r1", protocol.KindStroke)
	unsubscribe := c.Subscribe(topic, func([]byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	require.Eventually(t, func() bool { return f.hub.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, c.Subscriptions())
	require.Eventually(t, func() bool { return f.hub.Subscribers(topic) == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.False(t, c.Connected())
}

func TestClientReconnectsAndResubscribes(t *testing.T) {
	hub := NewHub(nil, nil)
	ln, err := stdnet.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	c, err := NewClient("http://"+addr, ClientOptions{ReconnectInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	topic := protocol.TopicChannel("r1", protocol.KindClear)
	c.Subscribe(topic, func([]byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	// the hub comes up after the client started dialing
	time.Sleep(50 * time.Millisecond)
	ln, err = stdnet.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: hub.Handler()}}
	srv.Start()
	defer srv.Close()
	defer hub.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestBusRouting(t *testing.T) {
	bus := NewBus()
	var got inbox
	unsubscribe := bus.Subscribe(protocol.TopicChannel("r1", protocol.KindClear), got.handler(t))
	bus.Subscribe(protocol.TopicChannel("r2", protocol.KindClear), got.handler(t))

	require.NoError(t, bus.Publish(protocol.SendChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{Owner: "A"})))
	assert.Equal(t, []protocol.Message{&protocol.ClearMessage{Owner: "A"}}, got.all())

	assert.ErrorIs(t, bus.Publish(protocol.TopicChannel("r1", protocol.KindClear), nil), ErrUnroutable)

	assert.Equal(t, 2, bus.Subscriptions())
	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.Subscriptions())
	require.NoError(t, bus.Publish(protocol.SendChannel("r1", protocol.KindClear), encode(t, &protocol.ClearMessage{Owner: "A"})))
	assert.Len(t, got.all(), 1)
}

func TestWebsocketURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://10.0.0.5:8080":  "ws://10.0.0.5:8080/ws",
		"https://board.example": "wss://board.example/ws",
		"ws://localhost:1/":     "ws://localhost:1/ws",
	} {
		got, err := WebsocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"ftp://x", "localhost:8080", "http://"} {
		_, err := WebsocketURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestShareLink(t *testing.T) {
	link := ShareLink("192.168.1.4", 8080, "room-123")
	assert.Equal(t, "localboard://192.168.1.4:8080/room-123", link)

	server, room, err := ParseShareLink(link)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.4:8080", server)
	assert.Equal(t, "room-123", room)

	server, room, err = ParseShareLink("localboard://10.0.0.1:8888/")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8888", server)
	assert.Empty(t, room)

	for _, bad := range []string{"http://x:1/r", "localboard://nohost/r", "localboard://h:1/a%2Fb"} {
		_, _, err := ParseShareLink(bad)
		assert.Error(t, err, bad)
	}
}

func TestHostFromEntry(t *testing.T) {
	h, ok := hostFromEntry(&mdns.ServiceEntry{
		Name:       "studio._lessonboard._tcp.local.",
		AddrV4:     stdnet.IPv4(192, 168, 1, 9),
		Port:       8080,
		InfoFields: []string{"LessonBoard", "room=math"},
	})
	require.True(t, ok)
	assert.Equal(t, Host{Instance: "studio", Addr: "192.168.1.9:8080", Room: "math"}, h)
	assert.Equal(t, "http://192.168.1.9:8080", h.URL())

	_, ok = hostFromEntry(&mdns.ServiceEntry{Name: "x", Port: 8080})
	assert.False(t, ok)
}
