package game

import (
	"context"
	"fmt"
	"time"

	"cueword/wire"
)

func (r *Room) handleTick(now time.Time) {
	r.clock.Advance(now)
	if !r.disposed {
		r.presence.advance(now)
	}
}

// Roster.

func (r *Room) handleJoin(req roomJoinRequest) {
	if req.userId == "" {
		req.resp <- joinResult{err: ErrIdentityRequired}
		return
	}

	if p := r.state.PlayerByUser(req.userId); p != nil {
		if p.Connected || !r.presence.inGrace(p.Id) {
			req.resp <- joinResult{err: ErrAlreadyInRoom}
			return
		}
		// Same identity coming back through a fresh join inside the window.
		req.resp <- joinResult{sessionId: p.SessionId}
		r.restore(p, req.conn)
		return
	}

	p := &Player{
		Id:          r.newSessionId(),
		SessionId:   r.newSessionId(),
		UserId:      req.userId,
		DisplayName: req.username,
		Connected:   true,
	}
	if err := r.state.AddPlayer(p); err != nil {
		req.resp <- joinResult{err: err}
		return
	}
	if _, ok := r.state.HandOverOwnership(); ok {
		r.log.Info().Str("player", p.Id).Msg("ownership handed over")
	}

	r.attach(p.Id, req.conn)
	r.presence.cancelIdle()
	req.resp <- joinResult{sessionId: p.SessionId}

	r.log.Info().Str("player", p.Id).Str("user", p.UserId).Msg("player joined")
	r.sendTo(p.Id, wire.ServerPacket{Kind: wire.ServerWelcome, SessionId: p.SessionId, PlayerId: p.Id})
	r.broadcastState()
}

func (r *Room) handleReconnect(req roomJoinRequest) {
	p := r.state.PlayerBySession(req.sessionId)
	if p == nil || p.UserId != req.userId {
		req.resp <- joinResult{err: ErrUnknownSession}
		return
	}
	req.resp <- joinResult{sessionId: p.SessionId}
	r.restore(p, req.conn)
}

func (r *Room) restore(p *Player, conn Conn) {
	r.presence.cancelGrace(p.Id)
	r.attach(p.Id, conn)
	p.Connected = true

	r.log.Info().Str("player", p.Id).Msg("player reconnected")
	r.sendTo(p.Id, wire.ServerPacket{Kind: wire.ServerWelcome, SessionId: p.SessionId, PlayerId: p.Id})
	r.broadcastState()
}

func (r *Room) attach(playerId string, conn Conn) {
	if old, ok := r.conns[playerId]; ok && old != conn {
		delete(r.players, old)
		old.Release("replaced")
	}
	r.conns[playerId] = conn
	r.players[conn] = playerId
}

func (r *Room) detach(playerId string) Conn {
	c, ok := r.conns[playerId]
	if !ok {
		return nil
	}
	delete(r.conns, playerId)
	delete(r.players, c)
	return c
}

// handleDisconnect keeps the player's slot and scores for the reconnection
// grace window. Connections that were already replaced are ignored.
func (r *Room) handleDisconnect(c Conn) {
	playerId, ok := r.players[c]
	if !ok {
		return
	}
	r.detach(playerId)
	c.Release("")

	r.state.SetConnected(playerId, false)
	r.presence.startGrace(playerId)
	r.log.Info().Str("player", playerId).Msg("player disconnected")

	if r.checkRestartVotes() {
		return
	}
	r.broadcastState()
}

func (r *Room) handleLeave(playerId string) {
	r.presence.cancelGrace(playerId)
	r.removePlayer(playerId, "left")
}

func (r *Room) expireGrace(playerId string) {
	r.removePlayer(playerId, "reconnection window expired")
}

func (r *Room) removePlayer(playerId, reason string) {
	if c := r.detach(playerId); c != nil {
		c.Release(reason)
	}
	if r.state.RemovePlayer(playerId) == nil {
		return
	}
	r.log.Info().Str("player", playerId).Str("reason", reason).Msg("player removed")

	if owner, ok := r.state.HandOverOwnership(); ok {
		r.log.Info().Str("player", owner.Id).Msg("ownership handed over")
	}
	if len(r.state.Players()) == 0 {
		r.armIdle()
	}
	if r.checkRestartVotes() {
		return
	}
	r.broadcastState()
}

// armIdle starts the disposal countdown for an empty room. Before any game
// was started the countdown is measured from the room's creation.
func (r *Room) armIdle() {
	delay := r.settings.IdleDispose
	if !r.state.Started() {
		delay = max(r.createdAt.Add(r.settings.IdleDispose).Sub(r.presence.clock.Now()), 0)
	}
	r.presence.armIdle(delay)
}

func (r *Room) idleExpired() {
	r.dispose("idle")
}

// dispose runs at most once. Nothing scheduled by the room fires afterwards.
func (r *Room) dispose(reason string) {
	if r.disposed {
		return
	}
	r.disposed = true

	r.clearPhaseTimer()
	r.clock.CancelAll()
	r.presence.stop()
	for id, c := range r.conns {
		c.Release(reason)
		delete(r.players, c)
		delete(r.conns, id)
	}
	r.cancel()

	r.log.Info().Str("reason", reason).Msg("room disposed")
	r.lobby.RemoveRoom(r.id)
}

// Phases.

func (r *Room) setPhaseTimer(h Handle) {
	r.clock.Cancel(r.phaseTimer)
	r.phaseTimer = h
}

func (r *Room) clearPhaseTimer() {
	r.setPhaseTimer(0)
}

// runCountdown decrements the visible counter once per step and calls then
// when it reaches zero.
func (r *Room) runCountdown(then func()) {
	r.setPhaseTimer(r.clock.SetInterval(func() {
		if r.state.DecrementCounter() > 0 {
			r.broadcastState()
			return
		}
		then()
	}, r.settings.CountdownStep))
}

func (r *Room) handleStartGame(playerId string, packet wire.ClientPacket) {
	if r.state.Phase() != PhaseLobby {
		r.sendError(playerId, CodeInvalidPhase)
		return
	}
	p := r.state.Player(playerId)
	if !r.state.IsOwner(playerId) || (packet.OwnerId != "" && packet.OwnerId != p.UserId) {
		r.sendError(playerId, CodeNotOwner)
		return
	}
	if r.state.ConnectedCount() < r.settings.MinPlayers {
		r.sendError(playerId, CodeNotEnoughPlayers)
		return
	}

	catalogReference := packet.CatalogReference
	if catalogReference == "" {
		catalogReference = r.state.CatalogReference()
	}
	r.beginSession(catalogReference, playerId)
}

// beginSession creates a played game and moves to the first countdown. On
// failure the phase is left untouched and only the requesters hear about it.
func (r *Room) beginSession(catalogReference string, requesters ...string) bool {
	gameId, rounds, err := r.loadSession(catalogReference)
	if err != nil {
		r.log.Error().Err(err).Str("catalog", catalogReference).Msg("could not start game")
		for _, id := range requesters {
			r.sendError(id, CodeStartFailed)
		}
		return false
	}

	if err := r.state.BeginSession(gameId, catalogReference, rounds, r.settings.StartCountdown); err != nil {
		r.log.Error().Err(err).Msg("could not start game")
		return false
	}
	r.clock.ResumeAll()
	r.runCountdown(r.startRound)

	r.log.Info().Str("game", gameId).Int("rounds", len(rounds)).Msg("game started")
	r.broadcastState()
	return true
}

func (r *Room) loadSession(catalogReference string) (string, []*Round, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.settings.CollaboratorTimeout)
	defer cancel()

	gameId, err := r.record.CreatePlayedGame(ctx, catalogReference, r.state.OwnerUserId())
	if err != nil {
		return "", nil, fmt.Errorf("creating played game: %w", err)
	}
	crs, err := r.catalog.GetRoundsForGame(ctx, gameId)
	if err != nil {
		return "", nil, fmt.Errorf("loading rounds of %s: %w", gameId, err)
	}
	rounds, err := NewRounds(crs)
	if err != nil {
		return "", nil, err
	}
	return gameId, rounds, nil
}

func (r *Room) startRound() {
	if err := r.state.StartRound(); err != nil {
		r.log.Error().Err(err).Msg("could not start round")
		r.clearPhaseTimer()
		return
	}
	r.armCycle()
	r.broadcastState()
}

func (r *Room) armCycle() {
	d := r.settings.CycleDurations[r.state.Cycle()-1]
	r.setPhaseTimer(r.clock.SetTimeout(r.cycleExpired, d))
}

func (r *Room) cycleExpired() {
	if r.state.AdvanceCycle() {
		r.armCycle()
		r.broadcastState()
		return
	}
	if err := r.state.EndRound(); err != nil {
		r.log.Error().Err(err).Msg("could not end round")
		return
	}
	r.enterRoundEnd()
}

func (r *Room) enterRoundEnd() {
	r.state.SetCounter(r.settings.InterRoundCountdown)
	r.runCountdown(r.afterRoundEnd)
	r.broadcastState()
}

func (r *Room) afterRoundEnd() {
	if r.state.HasRemainingRounds() {
		if err := r.state.NextCountdown(r.settings.StartCountdown); err != nil {
			r.log.Error().Err(err).Msg("could not continue game")
			r.clearPhaseTimer()
			return
		}
		r.runCountdown(r.startRound)
	} else {
		if err := r.state.EndGame(); err != nil {
			r.log.Error().Err(err).Msg("could not end game")
		}
		r.clearPhaseTimer()
		r.log.Info().Str("game", r.state.PlayedGameId()).Msg("game ended")
	}
	r.broadcastState()
}

func (r *Room) handleGuess(playerId, text string) {
	winner, ok := r.state.AcceptGuess(playerId, text, r.settings.Scores)
	if !ok {
		r.sendTo(playerId, wire.ServerPacket{Kind: wire.ServerWrongGuess})
		return
	}
	r.log.Info().
		Str("player", winner.PlayerId).
		Int("round", r.state.Round()).
		Int("cycle", r.state.Cycle()).
		Int("points", winner.Points).
		Msg("round won")
	r.enterRoundEnd()
}

// Pause and restart.

func (r *Room) mayPause(playerId string) bool {
	return r.settings.PausePolicy == PauseAnyPlayer || r.state.IsOwner(playerId)
}

func (r *Room) handlePause(playerId string) {
	if !r.mayPause(playerId) {
		r.sendError(playerId, CodeNotAllowed)
		return
	}
	phase := r.state.Phase()
	if (phase != PhaseCountdown && phase != PhaseRoundActive) || r.state.PlayStatus() == StatusPaused {
		return
	}
	r.clock.PauseAll()
	r.state.SetPaused(true)
	r.broadcastState()
}

func (r *Room) handleResume(playerId string) {
	if !r.mayPause(playerId) {
		r.sendError(playerId, CodeNotAllowed)
		return
	}
	if r.state.PlayStatus() != StatusPaused {
		return
	}
	r.clock.ResumeAll()
	r.state.SetPaused(false)
	r.broadcastState()
}

func (r *Room) handleRestartVote(playerId string, vote bool) {
	if !r.state.CastVote(playerId, vote) {
		return
	}
	if r.state.RestartAgreed(r.settings.RestartPolicy) && r.restartFromVotes() {
		return
	}
	r.broadcastState()
}

// checkRestartVotes re-evaluates pending votes after the roster changed. It
// reports whether a new game was started.
func (r *Room) checkRestartVotes() bool {
	if r.state.Phase() != PhaseGameEnd {
		return false
	}
	if _, cast := r.state.VoteTally(); cast == 0 || !r.state.RestartAgreed(r.settings.RestartPolicy) {
		return false
	}
	return r.restartFromVotes()
}

// restartFromVotes starts the new game the votes agreed on. A failed attempt
// is reported to every supporter and discards the votes, so only a fresh
// round of voting tries again.
func (r *Room) restartFromVotes() bool {
	supporters := r.state.Supporters()
	if r.beginSession(r.state.CatalogReference(), supporters...) {
		return true
	}
	r.state.ClearVotes()
	return false
}

func (r *Room) handleRestart(playerId string) {
	if r.state.Phase() != PhaseGameEnd {
		r.sendError(playerId, CodeInvalidPhase)
		return
	}
	if !r.state.IsOwner(playerId) {
		r.sendError(playerId, CodeNotOwner)
		return
	}
	r.beginSession(r.state.CatalogReference(), playerId)
}
