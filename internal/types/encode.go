package types

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

type fallback struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func (m Admission) fallbackID() string   { return m.PlayerID }
func (m Membership) fallbackID() string  { return m.PlayerID }
func (m Finished) fallbackID() string    { return m.SessionID }
func (m ActionEvent) fallbackID() string { return m.PlayerID }
func (m GameStarted) fallbackID() string { return m.Session.ID }

// Encode marshals m. If m cannot be encoded, Encode still returns a minimal
// payload carrying the type and id, alongside an ErrSerializationFailure.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err == nil {
		return data, nil
	}
	fb := fallback{Type: m.MessageType()}
	if ided, ok := m.(interface{ fallbackID() string }); ok {
		fb.ID = ided.fallbackID()
	}
	data, ferr := json.Marshal(fb)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrSerializationFailure, ferr)
	}
	return data, fmt.Errorf("%w: %s: %v", engine.ErrSerializationFailure, m.MessageType(), err)
}
