// Package net carries whiteboard messages between participants: a room
// relay hub, the websocket client participants dial it with, an in-process
// bus with the same routing, hydration reads and LAN discovery.
package net

import (
	"encoding/json"
	"errors"
)

type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"
	OpMessage     Op = "message"
)

// Frame is one websocket text message between a client and the hub. Clients
// send subscribe, unsubscribe and publish frames; the hub delivers message
// frames.
type Frame struct {
	Op      Op              `json:"op"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	// ErrNotConnected is returned by Publish while the client has no live
	// connection to the hub.
	ErrNotConnected = errors.New("not connected")
	// ErrUnroutable means a publish went to something other than a room send
	// channel.
	ErrUnroutable = errors.New("unroutable channel")
)

// Handler receives the raw payload of a message delivered on a subscribed
// channel.
type Handler func(payload []byte)

// Transport is the publish/subscribe surface a session syncs over.
type Transport interface {
	// Subscribe registers h for channel. The returned func removes it and is
	// safe to call more than once.
	Subscribe(channel string, h Handler) (unsubscribe func())
	Publish(channel string, payload []byte) error
}

// registry tracks handlers per channel. Callers hold their own lock.
type registry struct {
	next uint64
	subs map[string]map[uint64]Handler
}

func newRegistry() registry {
	return registry{subs: make(map[string]map[uint64]Handler)}
}

// add returns the handler id and whether channel is newly subscribed.
func (r *registry) add(channel string, h Handler) (uint64, bool) {
	r.next++
	hs, ok := r.subs[channel]
	if !ok {
		hs = make(map[uint64]Handler)
		r.subs[channel] = hs
	}
	hs[r.next] = h
	return r.next, !ok
}

// remove reports whether channel lost its last handler.
func (r *registry) remove(channel string, id uint64) bool {
	hs, ok := r.subs[channel]
	if !ok {
		return false
	}
	if _, ok := hs[id]; !ok {
		return false
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(r.subs, channel)
		return true
	}
	return false
}

func (r *registry) handlers(channel string) []Handler {
	hs := r.subs[channel]
	out := make([]Handler, 0, len(hs))
	for _, h := range hs {
		out = append(out, h)
	}
	return out
}

func (r *registry) channels() []string {
	out := make([]string, 0, len(r.subs))
	for ch := range r.subs {
		out = append(out, ch)
	}
	return out
}
