package engine

import "slices"

// TurnOrder is the join-ordered roster with a cursor on the current player.
// The zero value is an empty order. Not safe for concurrent use.
type TurnOrder struct {
	ids    []string
	cursor int
}

func (t *TurnOrder) Len() int { return len(t.ids) }

func (t *TurnOrder) Contains(id string) bool { return slices.Contains(t.ids, id) }

// IDs returns a copy of the order.
func (t *TurnOrder) IDs() []string { return slices.Clone(t.ids) }

// Cursor returns the current index, or -1 when the order is empty.
func (t *TurnOrder) Cursor() int {
	if len(t.ids) == 0 {
		return -1
	}
	return t.cursor
}

func (t *TurnOrder) Current() (string, bool) {
	if len(t.ids) == 0 {
		return "", false
	}
	return t.ids[t.cursor], true
}

// Add appends id. Duplicates are rejected.
func (t *TurnOrder) Add(id string) bool {
	if id == "" || t.Contains(id) {
		return false
	}
	t.ids = append(t.ids, id)
	return true
}

// Remove drops id while keeping the current player stable. Removing an id
// before the cursor shifts the cursor back; removing the current player
// hands the turn to whoever shifted into its slot, wrapping to 0.
func (t *TurnOrder) Remove(id string) bool {
	idx := slices.Index(t.ids, id)
	if idx < 0 {
		return false
	}
	t.ids = slices.Delete(t.ids, idx, idx+1)
	switch {
	case len(t.ids) == 0:
		t.cursor = 0
	case idx < t.cursor:
		t.cursor--
	case t.cursor >= len(t.ids):
		t.cursor = 0
	}
	return true
}

// Advance moves the cursor to the next player, wrapping around.
func (t *TurnOrder) Advance() (string, bool) {
	if len(t.ids) == 0 {
		return "", false
	}
	t.cursor = (t.cursor + 1) % len(t.ids)
	return t.ids[t.cursor], true
}

func (t *TurnOrder) Reset() { t.cursor = 0 }

// SetCurrent points the cursor at id.
func (t *TurnOrder) SetCurrent(id string) bool {
	idx := slices.Index(t.ids, id)
	if idx < 0 {
		return false
	}
	t.cursor = idx
	return true
}

// First returns the earliest joined id still present.
func (t *TurnOrder) First() (string, bool) {
	if len(t.ids) == 0 {
		return "", false
	}
	return t.ids[0], true
}
