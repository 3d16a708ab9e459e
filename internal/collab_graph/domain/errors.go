package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNodeNotFound         = errors.New("graph node not found")
	ErrCollaboratorNotFound = errors.New("collaborator not found")
	ErrSessionClosed        = errors.New("presence session closed")
	ErrNotConnected         = errors.New("presence session not connected")
	ErrMalformedMessage     = errors.New("malformed protocol message")
	ErrUnknownMessageType   = errors.New("unknown protocol message type")
	ErrInvalidPosition      = errors.New("position is not finite")
	ErrInvalidZoom          = errors.New("zoom level must be a positive finite number")
)

// IntegrityViolation describes one broken reference found while building a graph
type IntegrityViolation struct {
	Link   int    `json:"link"`    // index of the offending link, -1 for node-level problems
	NodeID string `json:"node_id"` // the id that is missing, duplicated or empty
	Reason string `json:"reason"`
}

// GraphIntegrityError is returned when a graph cannot be constructed because
// links reference missing nodes or node ids are not unique
type GraphIntegrityError struct {
	Violations []IntegrityViolation
}

func (e *GraphIntegrityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Link >= 0 {
			parts = append(parts, fmt.Sprintf("link %d: %s %q", v.Link, v.Reason, v.NodeID))
		} else {
			parts = append(parts, fmt.Sprintf("%s %q", v.Reason, v.NodeID))
		}
	}
	return "graph integrity: " + strings.Join(parts, "; ")
}
