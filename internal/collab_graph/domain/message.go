package domain

import "time"

// MessageType discriminates the protocol message union
type MessageType string

const (
	MessageCursorMove MessageType = "cursor_move"
	MessageNodeMove   MessageType = "node_move"
	MessageZoomChange MessageType = "zoom_change"
	MessageJoin       MessageType = "join"
	MessageLeave      MessageType = "leave"
	MessageHeartbeat  MessageType = "heartbeat"
)

// Message is the wire envelope shared by every protocol message.
// Only the fields belonging to Type are populated.
type Message struct {
	Type      MessageType `json:"type" validate:"required,oneof=cursor_move node_move zoom_change join leave heartbeat"`
	SenderID  string      `json:"senderId" validate:"required,max=128"`
	Timestamp int64       `json:"timestamp" validate:"gt=0"` // unix milliseconds

	// cursor_move
	Cursor *Point `json:"cursor,omitempty" validate:"required_if=Type cursor_move"`

	// node_move
	NodeID   string `json:"nodeId,omitempty" validate:"required_if=Type node_move"`
	Position *Point `json:"position,omitempty" validate:"required_if=Type node_move"`

	// zoom_change
	Level float64 `json:"level,omitempty" validate:"required_if=Type zoom_change"`

	// join
	Presence      *Collaborator  `json:"presence,omitempty"`
	Users         []Collaborator `json:"users,omitempty" validate:"omitempty,dive"`
	Snapshot      bool           `json:"snapshot,omitempty"` // Users is a complete roster, possibly empty
	RequestRoster bool           `json:"requestRoster,omitempty"`
	Reply         bool           `json:"reply,omitempty"`

	// leave
	ID string `json:"id,omitempty" validate:"required_if=Type leave"`
}

// Time returns the send timestamp as a time.Time
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsBulkRoster reports whether the message is a join carrying a roster snapshot
func (m *Message) IsBulkRoster() bool {
	return m.Type == MessageJoin && m.Snapshot
}

func newMessage(t MessageType, sender string, now time.Time) Message {
	return Message{Type: t, SenderID: sender, Timestamp: now.UnixMilli()}
}

// NewCursorMove builds a cursor_move message
func NewCursorMove(sender string, cursor Point, now time.Time) Message {
	m := newMessage(MessageCursorMove, sender, now)
	m.Cursor = &cursor
	return m
}

// NewNodeMove builds a node_move message
func NewNodeMove(sender, nodeID string, pos Point, now time.Time) Message {
	m := newMessage(MessageNodeMove, sender, now)
	m.NodeID = nodeID
	m.Position = &pos
	return m
}

// NewZoomChange builds a zoom_change message
func NewZoomChange(sender string, level float64, now time.Time) Message {
	m := newMessage(MessageZoomChange, sender, now)
	m.Level = level
	return m
}

// NewJoin builds a join announcing presence
func NewJoin(presence Collaborator, requestRoster bool, now time.Time) Message {
	m := newMessage(MessageJoin, presence.ID, now)
	p := presence.Clone()
	m.Presence = &p
	m.RequestRoster = requestRoster
	return m
}

// NewRosterSnapshot builds a bulk join carrying the full roster
func NewRosterSnapshot(sender string, users []Collaborator, now time.Time) Message {
	m := newMessage(MessageJoin, sender, now)
	m.Users = make([]Collaborator, 0, len(users))
	for _, u := range users {
		m.Users = append(m.Users, u.Clone())
	}
	m.Snapshot = true
	m.Reply = true
	return m
}

// NewLeave builds a leave for the given collaborator
func NewLeave(sender string, now time.Time) Message {
	m := newMessage(MessageLeave, sender, now)
	m.ID = sender
	return m
}

// NewHeartbeat builds a heartbeat
func NewHeartbeat(sender string, now time.Time) Message {
	return newMessage(MessageHeartbeat, sender, now)
}
