package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderOf(ids ...string) *TurnOrder {
	t := &TurnOrder{}
	for _, id := range ids {
		t.Add(id)
	}
	return t
}

func current(t *testing.T, o *TurnOrder) string {
	t.Helper()
	id, ok := o.Current()
	require.True(t, ok, "expected a current player")
	return id
}

func TestTurnOrder_EmptyHasNoCursor(t *testing.T) {
	o := &TurnOrder{}
	assert.Equal(t, -1, o.Cursor())
	_, ok := o.Current()
	assert.False(t, ok)
	_, ok = o.Advance()
	assert.False(t, ok)
}

func TestTurnOrder_RejectsDuplicates(t *testing.T) {
	o := orderOf("a", "b")
	assert.False(t, o.Add("a"))
	assert.False(t, o.Add(""))
	assert.Equal(t, []string{"a", "b"}, o.IDs())
}

func TestTurnOrder_AdvanceCyclesInJoinOrder(t *testing.T) {
	o := orderOf("a", "b", "c")
	var seen []string
	for range 6 {
		seen = append(seen, current(t, o))
		o.Advance()
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestTurnOrder_Remove(t *testing.T) {
	cases := []struct {
		name        string
		ids         []string
		cursor      int
		remove      string
		wantIDs     []string
		wantCursor  int
		wantCurrent string
	}{
		{
			name: "before cursor keeps current", ids: []string{"a", "b", "c", "d"}, cursor: 2, remove: "a",
			wantIDs: []string{"b", "c", "d"}, wantCursor: 1, wantCurrent: "c",
		},
		{
			name: "after cursor keeps current", ids: []string{"a", "b", "c", "d"}, cursor: 1, remove: "d",
			wantIDs: []string{"a", "b", "c"}, wantCursor: 1, wantCurrent: "b",
		},
		{
			name: "current hands turn to next", ids: []string{"a", "b", "c"}, cursor: 1, remove: "b",
			wantIDs: []string{"a", "c"}, wantCursor: 1, wantCurrent: "c",
		},
		{
			name: "current at tail wraps to zero", ids: []string{"a", "b", "c"}, cursor: 2, remove: "c",
			wantIDs: []string{"a", "b"}, wantCursor: 0, wantCurrent: "a",
		},
		{
			name: "last entry empties order", ids: []string{"a"}, cursor: 0, remove: "a",
			wantIDs: nil, wantCursor: -1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := orderOf(tc.ids...)
			require.True(t, o.SetCurrent(tc.ids[tc.cursor]))

			require.True(t, o.Remove(tc.remove))
			if tc.wantIDs == nil {
				assert.Empty(t, o.IDs())
			} else {
				assert.Equal(t, tc.wantIDs, o.IDs())
			}
			assert.Equal(t, tc.wantCursor, o.Cursor())
			if tc.wantCurrent != "" {
				assert.Equal(t, tc.wantCurrent, current(t, o))
			}
		})
	}
}

func TestTurnOrder_RemoveUnknownIsNoop(t *testing.T) {
	o := orderOf("a", "b")
	o.Advance()
	assert.False(t, o.Remove("zz"))
	assert.Equal(t, "b", current(t, o))
}

// Cursor stays valid under arbitrary churn.
func TestTurnOrder_CursorAlwaysValidUnderChurn(t *testing.T) {
	o := &TurnOrder{}
	ops := []struct {
		add    string
		remove string
		adv    bool
	}{
		{add: "a"}, {add: "b"}, {adv: true}, {add: "c"}, {adv: true}, {remove: "c"},
		{add: "d"}, {adv: true}, {adv: true}, {remove: "a"}, {remove: "d"}, {add: "e"},
		{adv: true}, {remove: "b"}, {remove: "e"}, {add: "f"},
	}
	for _, op := range ops {
		switch {
		case op.add != "":
			o.Add(op.add)
		case op.remove != "":
			o.Remove(op.remove)
		case op.adv:
			o.Advance()
		}
		if o.Len() == 0 {
			assert.Equal(t, -1, o.Cursor())
			continue
		}
		assert.GreaterOrEqual(t, o.Cursor(), 0)
		assert.Less(t, o.Cursor(), o.Len())
	}
	assert.Equal(t, "f", current(t, o))
}
