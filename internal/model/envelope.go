package model

import (
	"strings"
	"time"
)

type EventType string

const (
	EventConnecting   EventType = "connecting"
	EventPaired       EventType = "paired"
	EventReady        EventType = "ready"
	EventAuthFailure  EventType = "auth_failure"
	EventDisconnected EventType = "disconnected"
	EventInbound      EventType = "inbound_message"
)

func (t EventType) String() string { return string(t) }

// ParseEventType normalizes input. Returns (value, true) if known.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case EventConnecting, EventPaired, EventReady, EventAuthFailure, EventDisconnected, EventInbound:
		return t, true
	default:
		return t, false
	}
}

// Envelope is the lifecycle event payload published by the channel gateway
// on the channel.events topic.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ChannelID int64     `json:"channel_id"`
	Address   string    `json:"address,omitempty"` // ready: bound number; inbound: sender
	Body      string    `json:"body,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Pairing   string    `json:"pairing,omitempty"`
	At        time.Time `json:"at"`
}
