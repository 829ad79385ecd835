package protocol

import "strings"

const (
	sendPrefix  = "/app/room/"
	topicPrefix = "/topic/room/"
	boardPath   = "/whiteboard"
)

func suffix(k Kind) (string, bool) {
	switch k {
	case KindStroke:
		return "", true
	case KindDelta:
		return "/delta", true
	case KindClear:
		return "/clear", true
	case KindUndo:
		return "/undo", true
	}
	return "", false
}

// SendChannel is where a participant publishes messages of kind k.
func SendChannel(room string, k Kind) string {
	s, _ := suffix(k)
	return sendPrefix + room + boardPath + s
}

// TopicChannel is where the relay delivers messages of kind k to the room.
func TopicChannel(room string, k Kind) string {
	s, _ := suffix(k)
	return topicPrefix + room + boardPath + s
}

// ParseSendChannel splits a send channel into its room and message kind.
func ParseSendChannel(channel string) (room string, k Kind, ok bool) {
	return parse(channel, sendPrefix)
}

func ParseTopicChannel(channel string) (room string, k Kind, ok bool) {
	return parse(channel, topicPrefix)
}

func parse(channel, prefix string) (string, Kind, bool) {
	rest, found := strings.CutPrefix(channel, prefix)
	if !found {
		return "", "", false
	}
	i := strings.Index(rest, boardPath)
	if i <= 0 {
		return "", "", false
	}
	room, tail := rest[:i], rest[i+len(boardPath):]
	if strings.Contains(room, "/") {
		return "", "", false
	}
	for _, k := range Kinds {
		if s, _ := suffix(k); s == tail {
			return room, k, true
		}
	}
	return "", "", false
}

// TopicFor maps a send channel to the topic its messages are relayed on.
func TopicFor(send string) (string, bool) {
	room, k, ok := ParseSendChannel(send)
	if !ok {
		return "", false
	}
	return TopicChannel(room, k), true
}
