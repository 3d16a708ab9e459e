package domain

import "time"

// ConnectionStatus is the lifecycle state of a presence session
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusOpen         ConnectionStatus = "open"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusClosed       ConnectionStatus = "closed"
)

// Collaborator is the live presence of one connected user
type Collaborator struct {
	ID          string    `json:"id" validate:"required,max=128"`
	DisplayName string    `json:"displayName" validate:"max=128"`
	Color       string    `json:"color" validate:"omitempty,hexcolor"`
	Cursor      *Point    `json:"cursor,omitempty"`
	Zoom        float64   `json:"zoom,omitempty"`
	Active      bool      `json:"active"`
	LastActive  time.Time `json:"lastActive"`
}

// Clone returns a deep copy so callers never share the cursor pointer
func (c Collaborator) Clone() Collaborator {
	if c.Cursor != nil {
		cur := *c.Cursor
		c.Cursor = &cur
	}
	return c
}

// MergeFrom fills the empty presence fields of c from prev, so a join that
// omits the cursor or zoom keeps what was last known
func (c Collaborator) MergeFrom(prev Collaborator) Collaborator {
	c = c.Clone()
	if c.DisplayName == "" {
		c.DisplayName = prev.DisplayName
	}
	if c.Color == "" {
		c.Color = prev.Color
	}
	if c.Cursor == nil && prev.Cursor != nil {
		cur := *prev.Cursor
		c.Cursor = &cur
	}
	if c.Zoom == 0 {
		c.Zoom = prev.Zoom
	}
	return c
}
