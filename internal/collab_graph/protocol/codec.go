// Package protocol encodes and validates presence protocol messages.
package protocol

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

// MaxMessageSize bounds a single encoded message
const MaxMessageSize = 64 * 1024

var validate = validator.New()

var knownTypes = map[domain.MessageType]bool{
	domain.MessageCursorMove: true,
	domain.MessageNodeMove:   true,
	domain.MessageZoomChange: true,
	domain.MessageJoin:       true,
	domain.MessageLeave:      true,
	domain.MessageHeartbeat:  true,
}

// Encode validates m and serializes it for the transport
func Encode(m domain.Message) ([]byte, error) {
	if err := Validate(&m); err != nil {
		return nil, err
	}
	data, err := sonic.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", domain.ErrMalformedMessage, err)
	}
	return data, nil
}

// Decode parses and validates one inbound message
func Decode(data []byte) (domain.Message, error) {
	var m domain.Message
	if len(data) == 0 || len(data) > MaxMessageSize {
		return m, fmt.Errorf("%w: size %d", domain.ErrMalformedMessage, len(data))
	}
	if err := sonic.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if err := Validate(&m); err != nil {
		return m, err
	}
	return m, nil
}

// Validate checks the envelope and the per-type payload
func Validate(m *domain.Message) error {
	if !knownTypes[m.Type] {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, m.Type)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch m.Type {
	case domain.MessageCursorMove:
		if !m.Cursor.Finite() {
			return fmt.Errorf("%w: non-finite cursor", domain.ErrMalformedMessage)
		}
	case domain.MessageNodeMove:
		if !m.Position.Finite() {
			return fmt.Errorf("%w: non-finite position", domain.ErrMalformedMessage)
		}
	case domain.MessageZoomChange:
		if m.Level <= 0 || math.IsNaN(m.Level) || math.IsInf(m.Level, 0) {
			return fmt.Errorf("%w: zoom level %v", domain.ErrMalformedMessage, m.Level)
		}
	case domain.MessageJoin:
		if m.Presence == nil && !m.Snapshot {
			return fmt.Errorf("%w: join without presence or users", domain.ErrMalformedMessage)
		}
		if m.Presence != nil && m.Presence.ID != m.SenderID {
			return fmt.Errorf("%w: join presence %q sent by %q", domain.ErrMalformedMessage, m.Presence.ID, m.SenderID)
		}
	}
	return nil
}
