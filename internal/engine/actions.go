package engine

import (
	"encoding/json"
	"fmt"
)

const (
	ActionMove    = "move"
	ActionBuyCard = "buy_card"
)

type ActionOutcome struct {
	Type     string          `json:"action_type"`
	Applied  bool            `json:"applied"`
	Data     json.RawMessage `json:"action_data,omitempty"`
	Balance  int             `json:"balance"`
	Position int             `json:"position"`
}

// ActionFunc mutates p for one action. It must leave p untouched on error.
type ActionFunc func(p *Player, data json.RawMessage) error

var actions = map[string]ActionFunc{
	ActionMove:    applyMove,
	ActionBuyCard: applyBuyCard,
}

// Apply dispatches an action by type. Unknown types are acknowledged
// without effect so newer clients keep working against older servers.
func Apply(p *Player, actionType string, data json.RawMessage) (ActionOutcome, error) {
	if actionType == "" {
		return ActionOutcome{}, fmt.Errorf("%w: missing action_type", ErrInvalidParameter)
	}
	out := ActionOutcome{Type: actionType, Data: data}
	if fn, ok := actions[actionType]; ok {
		if err := fn(p, data); err != nil {
			return ActionOutcome{}, err
		}
		out.Applied = true
	}
	out.Balance = p.Balance
	out.Position = p.Position
	return out, nil
}

func applyMove(p *Player, data json.RawMessage) error {
	var body struct {
		Position *int `json:"position"`
	}
	if err := decodeAction(data, &body); err != nil {
		return err
	}
	if body.Position == nil {
		return fmt.Errorf("%w: move requires position", ErrInvalidParameter)
	}
	p.Position = *body.Position
	return nil
}

func applyBuyCard(p *Player, data json.RawMessage) error {
	var body struct {
		Cost int `json:"cost"`
	}
	if err := decodeAction(data, &body); err != nil {
		return err
	}
	if body.Cost < 0 {
		return fmt.Errorf("%w: negative cost %d", ErrInvalidParameter, body.Cost)
	}
	if body.Cost > p.Balance {
		return fmt.Errorf("%w: cost %d, balance %d", ErrInsufficientBalance, body.Cost, p.Balance)
	}
	p.Balance -= body.Cost
	return nil
}

func decodeAction(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: action_data: %v", ErrInvalidParameter, err)
	}
	return nil
}
