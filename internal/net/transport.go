package net

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectInterval = 2 * time.Second
	writeTimeout             = 5 * time.Second
)

type ClientOptions struct {
	ReconnectInterval time.Duration
	Dialer            *websocket.Dialer
	Logger            *slog.Logger
}

// Client is a participant's connection to the hub. Subscriptions outlive
// connections: every (re)connect re-sends a subscribe frame per channel.
type Client struct {
	url      string
	interval time.Duration
	dialer   *websocket.Dialer
	log      *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	reg  registry

	writeMu sync.Mutex
}

func NewClient(serverURL string, opts ClientOptions) (*Client, error) {
	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:      wsURL,
		interval: opts.ReconnectInterval,
		dialer:   opts.Dialer,
		log:      opts.Logger.With("component", "transport"),
		reg:      newRegistry(),
	}, nil
}

// WebsocketURL maps a hub base url (http, https, ws or wss) to its websocket
// endpoint.
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	return u.JoinPath("ws").String(), nil
}

// Run keeps the client connected until ctx is cancelled, retrying on a fixed
// interval.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("connection lost", "url", c.url, "err", err)
		}
		t := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.log.Info("stopping transport")
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer c.detach(conn)

	c.mu.Lock()
	c.conn = conn
	channels := c.reg.channels()
	c.mu.Unlock()
	for _, ch := range channels {
		if err := c.write(conn, Frame{Op: OpSubscribe, Channel: ch}); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", ch, err)
		}
	}
	c.log.Info("connected", "url", c.url, "channels", len(channels))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}
		if f.Op != OpMessage {
			continue
		}
		c.mu.Lock()
		hs := c.reg.handlers(f.Channel)
		c.mu.Unlock()
		for _, h := range hs {
			h(f.Payload)
		}
	}
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) write(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Connected reports whether a hub connection is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Subscribe(channel string, h Handler) func() {
	c.mu.Lock()
	id, first := c.reg.add(channel, h)
	conn := c.conn
	c.mu.Unlock()
	if first && conn != nil {
		if err := c.write(conn, Frame{Op: OpSubscribe, Channel: channel}); err != nil {
			c.log.Warn("failed to subscribe", "channel", channel, "err", err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			last := c.reg.remove(channel, id)
			conn := c.conn
			c.mu.Unlock()
			if last && conn != nil {
				if err := c.write(conn, Frame{Op: OpUnsubscribe, Channel: channel}); err != nil {
					c.log.Warn("failed to unsubscribe", "channel", channel, "err", err)
				}
			}
		})
	}
}

// Subscriptions counts subscribed channels.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reg.subs)
}

func (c *Client) Publish(channel string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := c.write(conn, Frame{Op: OpPublish, Channel: channel, Payload: payload}); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}
