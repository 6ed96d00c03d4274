package engine

import (
	"cmp"
	"slices"
)

type Standing struct {
	Position int    `json:"position"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Color    Color  `json:"color"`
	Balance  int    `json:"balance"`
	IsWinner bool   `json:"is_winner"`
}

type Result struct {
	Winner   Standing   `json:"winner"`
	Rankings []Standing `json:"rankings"`
}

// Rank orders players by balance, highest first. Ties keep the given order,
// so callers pass the roster in join order. An empty roster has no result.
func Rank(players []*Player) (Result, bool) {
	if len(players) == 0 {
		return Result{}, false
	}
	sorted := slices.Clone(players)
	slices.SortStableFunc(sorted, func(a, b *Player) int {
		return cmp.Compare(b.Balance, a.Balance)
	})

	res := Result{Rankings: make([]Standing, 0, len(sorted))}
	for i, p := range sorted {
		res.Rankings = append(res.Rankings, Standing{
			Position: i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Color:    p.Color,
			Balance:  p.Balance,
			IsWinner: i == 0,
		})
	}
	res.Winner = res.Rankings[0]
	return res, true
}
