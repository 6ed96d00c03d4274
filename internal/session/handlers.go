package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/mailbox"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

func (s *Session) join(m Join) (types.Admission, error) {
	now := s.opts.Now()
	if s.state.Terminal() || !now.Before(s.expiresAt) {
		return types.Admission{}, engine.ErrExpired
	}
	if len(s.players) >= s.opts.MaxPlayers {
		return types.Admission{}, engine.ErrFull
	}
	if _, dup := s.players[m.PlayerID]; dup {
		return types.Admission{}, fmt.Errorf("%w: player %s already joined", engine.ErrInvalidParameter, m.PlayerID)
	}
	color, err := s.pickColor(m.Color)
	if err != nil {
		return types.Admission{}, err
	}

	p := engine.NewPlayer(m.PlayerID, m.Name, color, m.ConnID, now)
	s.players[p.ID] = p
	s.order.Add(p.ID)
	s.emptySince = time.Time{}
	if len(s.players) == 1 {
		// Rejoining an emptied session makes the newcomer host.
		s.hostID = p.ID
	}
	if s.state == engine.StateWaiting && len(s.players) == 2 {
		extended := s.created.Add(2 * s.opts.WaitingTimeout)
		if extended.After(s.waitingDeadline) {
			s.waitingDeadline = extended
		}
	}
	s.hooks.PlayerAdded(s.id, p.ID)
	s.log.Info("player joined",
		zap.String("player_id", p.ID),
		zap.String("color", string(color)),
		zap.Int("players", len(s.players)))

	info := s.info()
	pi := types.NewPlayerInfo(p, s.hostID)
	s.broadcastExcept(p.ID, types.Membership{Type: types.OutPlayerJoined, PlayerID: p.ID, Player: &pi, Session: info})
	s.hooks.Changed(info)

	return types.Admission{Type: types.OutSessionJoined, Session: info, PlayerID: p.ID, PlayerInfo: pi}, nil
}

func (s *Session) pickColor(requested string) (engine.Color, error) {
	taken := s.takenColors()
	if requested == "" {
		for _, c := range engine.Colors {
			if !taken[c] {
				return c, nil
			}
		}
		return "", engine.ErrFull
	}
	c, err := engine.ParseColor(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a color", engine.ErrColorUnavailable, requested)
	}
	if taken[c] {
		return "", fmt.Errorf("%w: %s is taken", engine.ErrColorUnavailable, c)
	}
	return c, nil
}

func (s *Session) takenColors() map[engine.Color]bool {
	taken := make(map[engine.Color]bool, len(s.players))
	for _, p := range s.players {
		taken[p.Color] = true
	}
	return taken
}

// removePlayer is the single exit path for leave and eviction.
func (s *Session) removePlayer(playerID, reason string) error {
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	wasCurrent, _ := s.order.Current()

	delete(s.players, playerID)
	s.order.Remove(playerID)
	returned := s.mail.Evict(p.Color)
	s.hooks.PlayerRemoved(s.id, playerID)
	s.log.Info("player removed",
		zap.String("player_id", playerID),
		zap.String("reason", reason),
		zap.Int("returned_items", returned),
		zap.Int("players", len(s.players)))

	if len(s.players) == 0 {
		s.stopTimer()
		if !s.state.Terminal() {
			s.state = engine.StateWaiting
		}
		s.emptySince = s.opts.Now()
		s.postLater(s.opts.EmptyGrace, emptyCheck{since: s.emptySince})
		s.hooks.Changed(s.info())
		return nil
	}

	s.broadcast(types.Membership{Type: types.OutPlayerLeft, PlayerID: playerID, Session: s.info()})

	if playerID == s.hostID {
		s.hostID, _ = s.order.First()
		s.log.Info("host transferred", zap.String("host_id", s.hostID))
		s.broadcast(types.Membership{Type: types.OutHostChanged, HostID: s.hostID, Session: s.info()})
	}

	if s.state == engine.StatePlaying {
		if len(s.players) == 1 {
			only, _ := s.order.First()
			s.order.SetCurrent(only)
			s.log.Info("continuing solo", zap.String("player_id", only))
			s.broadcastTurn()
		} else if cur, _ := s.order.Current(); cur != wasCurrent {
			s.broadcastTurn()
		}
	}
	s.hooks.Changed(s.info())
	return nil
}

func (s *Session) start(playerID string) error {
	if _, ok := s.players[playerID]; !ok {
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	if playerID != s.hostID {
		return fmt.Errorf("%w: only the host can start", engine.ErrForbidden)
	}
	if s.state != engine.StateWaiting && s.state != engine.StateStarting {
		return fmt.Errorf("%w: cannot start from %s", engine.ErrInvalidState, s.state)
	}
	if len(s.players) < 2 {
		return fmt.Errorf("%w: have %d", engine.ErrInsufficientPlayers, len(s.players))
	}
	s.begin("host")
	return nil
}

// begin moves the session into play. The caller has already checked that a
// start is allowed; a single member plays solo.
func (s *Session) begin(trigger string) {
	s.state = engine.StateStarting
	s.order.Reset()
	s.state = engine.StatePlaying
	// The match runs a full duration from here; the countdown and the expiry
	// sweep share this deadline.
	s.expiresAt = s.opts.Now().Add(time.Duration(s.durationMinutes) * time.Minute)
	s.log.Info("game started", zap.String("trigger", trigger), zap.Int("players", len(s.players)))

	started := types.GameStarted{Type: types.OutGameStarted, Session: s.info()}
	for _, id := range s.order.IDs() {
		s.sendWithRetry(s.players[id], started)
	}
	s.startTimer()
	s.broadcastTurn()
	s.hooks.Changed(s.info())
}

func (s *Session) endTurn(playerID string) error {
	if s.state != engine.StatePlaying {
		return fmt.Errorf("%w: session is %s", engine.ErrInvalidState, s.state)
	}
	if _, ok := s.players[playerID]; !ok {
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	if cur, _ := s.order.Current(); cur != playerID {
		return engine.ErrNotYourTurn
	}
	s.order.Advance()
	s.broadcastTurn()
	return nil
}

func (s *Session) act(m Action) (engine.ActionOutcome, error) {
	p, ok := s.players[m.PlayerID]
	if !ok {
		return engine.ActionOutcome{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, m.PlayerID)
	}
	out, err := engine.Apply(p, m.ActionType, m.Data)
	if err != nil {
		return engine.ActionOutcome{}, err
	}
	s.broadcast(types.ActionEvent{Type: types.OutPlayerAction, PlayerID: p.ID, Outcome: out})
	return out, nil
}

func (s *Session) updateScore(playerID string, score int) error {
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	p.Balance = score
	s.broadcast(types.ScoreUpdated{Type: types.OutScoreUpdated, PlayerID: p.ID, Balance: p.Balance})
	return nil
}

func (s *Session) heartbeat(m Heartbeat) error {
	p, ok := s.players[m.PlayerID]
	if !ok {
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, m.PlayerID)
	}
	p.LastHeartbeat = m.At
	if m.ConnID != "" && m.ConnID != p.ConnID {
		s.log.Info("player rebound to new connection", zap.String("player_id", p.ID))
		p.ConnID = m.ConnID
	}
	if !p.Connected {
		p.Connected = true
		s.hooks.Changed(s.info())
	}
	return nil
}

func (s *Session) storeCard(m StoreCard) (types.CardStored, error) {
	sender, ok := s.players[m.SenderID]
	if !ok {
		return types.CardStored{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, m.SenderID)
	}
	target, err := engine.ParseColor(m.TargetColor)
	if err != nil {
		return types.CardStored{}, err
	}
	senderColor := sender.Color
	if m.SenderColor != "" {
		if c, err := engine.ParseColor(m.SenderColor); err == nil {
			senderColor = c
		}
	}
	path := m.Path
	if path == "" {
		path = mailbox.PathOf(m.Payload)
	}

	it := mailbox.Item{
		ID:          uuid.NewString(),
		SenderID:    sender.ID,
		SenderColor: senderColor,
		Category:    mailbox.CategoryOf(m.Payload),
		Path:        path,
		Payload:     m.Payload,
		StoredAt:    s.opts.Now(),
	}
	res := types.CardStored{Type: types.OutCardStored, ItemID: it.ID, TargetColor: target, Category: it.Category}

	recipient := s.playerByColor(target)
	if recipient == nil {
		s.mail.Reserve(it)
		s.log.Info("card returned to reserve",
			zap.String("target_color", string(target)),
			zap.String("category", it.Category))
		return res, nil
	}
	s.mail.Store(target, it)
	res.Delivered = true
	s.sendTo(recipient, types.CardsPending{Type: types.OutCardsPending, Color: target, Count: s.mail.Pending(target)})
	return res, nil
}

func (s *Session) fetchCards(m FetchCards) (types.Cards, error) {
	p, ok := s.players[m.PlayerID]
	if !ok {
		return types.Cards{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, m.PlayerID)
	}
	if m.Color != "" && m.Color != string(p.Color) {
		return types.Cards{}, fmt.Errorf("%w: cannot fetch cards for %s", engine.ErrForbidden, m.Color)
	}
	items := s.mail.Fetch(p.Color)
	return types.Cards{Type: types.OutPendingCards, Color: p.Color, Count: len(items), Cards: items}, nil
}

func (s *Session) drawReserve(m DrawReserve) (*mailbox.Item, error) {
	if _, ok := s.players[m.PlayerID]; !ok {
		return nil, fmt.Errorf("%w: player %s", engine.ErrNotFound, m.PlayerID)
	}
	category := m.Category
	if category == "" {
		category = mailbox.CategoryActions
	}
	it, ok := s.mail.DrawFromReserve(category)
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (s *Session) evictStale(now time.Time) {
	for _, id := range s.order.IDs() {
		p := s.players[id]
		if p.Stale(now, s.opts.HeartbeatTimeout) {
			s.log.Warn("evicting silent player",
				zap.String("player_id", id),
				zap.Duration("silent_for", now.Sub(p.LastHeartbeat)))
			_ = s.removePlayer(id, "heartbeat timeout")
		}
	}
}

func (s *Session) checkDeadlines(now time.Time) {
	switch {
	case s.state.Terminal():
	case !now.Before(s.expiresAt):
		s.finalize("expiry sweep")
	case s.state == engine.StateWaiting && len(s.players) > 0 && !now.Before(s.waitingDeadline):
		s.begin("waiting deadline")
	}
}

// finalize is the only transition into a terminal state. Whichever of the
// countdown or the expiry sweep gets here first wins; later callers no-op.
func (s *Session) finalize(trigger string) {
	if s.state.Terminal() {
		return
	}
	s.stopTimer()
	s.state = engine.StateExpired

	res, ranked := engine.Rank(s.roster())
	if ranked {
		s.log.Info("game finished",
			zap.String("trigger", trigger),
			zap.String("winner_id", res.Winner.PlayerID),
			zap.Int("winner_balance", res.Winner.Balance))
		s.broadcast(types.Finished{Type: types.OutGameFinished, SessionID: s.id, GameResult: &res})
		s.hooks.Finished(s.id, res)
	} else {
		s.log.Info("session expired", zap.String("trigger", trigger))
		s.broadcast(types.Finished{Type: types.OutSessionExpired, SessionID: s.id})
	}
	s.hooks.Changed(s.info())
	s.postLater(s.opts.FinishGrace, destroyNow{})
}

func (s *Session) destroy() {
	s.stopTimer()
	s.hooks.Destroyed(s.id)
	s.cancel()
}

func (s *Session) roster() []*engine.Player {
	ids := s.order.IDs()
	out := make([]*engine.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.players[id])
	}
	return out
}

func (s *Session) playerByColor(c engine.Color) *engine.Player {
	for _, p := range s.players {
		if p.Color == c {
			return p
		}
	}
	return nil
}

func (s *Session) info() types.SessionInfo {
	taken := s.takenColors()
	available := slices.DeleteFunc(slices.Clone(engine.Colors), func(c engine.Color) bool { return taken[c] })

	players := make([]types.PlayerInfo, 0, len(s.players))
	for _, p := range s.roster() {
		players = append(players, types.NewPlayerInfo(p, s.hostID))
	}
	return types.SessionInfo{
		ID:              s.id,
		HostID:          s.hostID,
		State:           s.state,
		Players:         players,
		PlayerOrder:     s.order.IDs(),
		MaxPlayers:      s.opts.MaxPlayers,
		AvailableColors: available,
		DurationMinutes: s.durationMinutes,
		CreatedAt:       s.created,
		ExpiresAt:       s.expiresAt,
		WaitingDeadline: s.waitingDeadline,
	}
}

func (s *Session) view() View {
	pending := make(map[engine.Color]int)
	for _, c := range engine.Colors {
		if n := s.mail.Pending(c); n > 0 {
			pending[c] = n
		}
	}
	return View{
		Info:       s.info(),
		Cursor:     s.order.Cursor(),
		EmptySince: s.emptySince,
		Remaining:  s.remaining,
		Pending:    pending,
		Reserve:    s.mail.ReserveSizes(),
	}
}
