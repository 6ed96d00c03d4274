// Package mailbox holds per-color queues of items waiting for a player and
// the category reserve decks that absorb items nobody can receive.
package mailbox

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

const (
	CategoryActions = "actions"
	CategoryEvents  = "events"
)

type Item struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_player_id"`
	SenderColor engine.Color    `json:"sender_color"`
	Category    string          `json:"category"`
	Path        string          `json:"path,omitempty"`
	Payload     json.RawMessage `json:"card_data"`
	StoredAt    time.Time       `json:"stored_at"`
}

// CategoryOf reads the item category declared in a card payload. The
// "category" field wins over "type"; anything else falls back to actions.
func CategoryOf(payload json.RawMessage) string {
	var decl struct {
		Category string `json:"category"`
		Type     string `json:"type"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &decl)
	}
	switch {
	case decl.Category != "":
		return decl.Category
	case decl.Type != "":
		return decl.Type
	default:
		return CategoryActions
	}
}

// PathOf reads the optional "path" a card payload carries.
func PathOf(payload json.RawMessage) string {
	var decl struct {
		Path string `json:"path"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &decl)
	}
	return decl.Path
}

// Mailbox is owned by a single session goroutine and is not safe for
// concurrent use.
type Mailbox struct {
	queues  map[engine.Color][]Item
	reserve map[string][]Item
}

func New() *Mailbox {
	return &Mailbox{
		queues:  make(map[engine.Color][]Item),
		reserve: make(map[string][]Item),
	}
}

// Store appends it to the queue of target.
func (m *Mailbox) Store(target engine.Color, it Item) {
	m.queues[target] = append(m.queues[target], it)
}

// Reserve returns it to the reserve deck of its category.
func (m *Mailbox) Reserve(it Item) {
	m.reserve[it.Category] = append(m.reserve[it.Category], it)
}

// Fetch drains the queue for color. A second call returns nothing until
// something new is stored.
func (m *Mailbox) Fetch(color engine.Color) []Item {
	items := m.queues[color]
	delete(m.queues, color)
	if items == nil {
		return []Item{}
	}
	return items
}

func (m *Mailbox) Pending(color engine.Color) int { return len(m.queues[color]) }

// Evict moves everything queued for color into the reserve decks and
// reports how many items moved.
func (m *Mailbox) Evict(color engine.Color) int {
	items := m.queues[color]
	delete(m.queues, color)
	for _, it := range items {
		m.Reserve(it)
	}
	return len(items)
}

// DrawFromReserve pops the oldest reserved item of category.
func (m *Mailbox) DrawFromReserve(category string) (Item, bool) {
	deck := m.reserve[category]
	if len(deck) == 0 {
		return Item{}, false
	}
	it := deck[0]
	if len(deck) == 1 {
		delete(m.reserve, category)
	} else {
		m.reserve[category] = deck[1:]
	}
	return it, true
}

func (m *Mailbox) ReserveSize(category string) int { return len(m.reserve[category]) }

// ReserveSizes reports the size of every non-empty reserve deck.
func (m *Mailbox) ReserveSizes() map[string]int {
	sizes := make(map[string]int, len(m.reserve))
	for cat, deck := range m.reserve {
		sizes[cat] = len(deck)
	}
	return sizes
}
