package models

import (
	"slices"
	"time"
)

const DefaultMessageType = "message"

type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	FromAgent string    `json:"from_agent"`
	ToAgent   *string   `json:"to_agent"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	ReadBy    []string  `json:"read_by"`
	CreatedAt time.Time `json:"created_at"`
}

// VisibleTo reports whether the message is a broadcast or addressed to agent.
func (m *Message) VisibleTo(agent string) bool {
	return m.ToAgent == nil || *m.ToAgent == agent
}

// HasReader reports whether agent already acknowledged the message.
func (m *Message) HasReader(agent string) bool {
	return slices.Contains(m.ReadBy, agent)
}

// MessageFilter narrows a message scan within one room.
// A zero SinceID and an empty For disable those predicates.
type MessageFilter struct {
	For     string
	SinceID int64
	Limit   int
}

// Matches applies the For and SinceID predicates; Limit is applied by the caller.
func (f MessageFilter) Matches(m *Message) bool {
	if f.SinceID > 0 && m.ID <= f.SinceID {
		return false
	}
	if f.For != "" && !m.VisibleTo(f.For) {
		return false
	}
	return true
}

// KeepRecent truncates an ascending slice to its last limit elements.
func KeepRecent(msgs []Message, limit int) []Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
