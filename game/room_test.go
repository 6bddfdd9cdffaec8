package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cueword/domain"
	"cueword/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type roomHarness struct {
	t       *testing.T
	room    *Room
	now     time.Time
	record  *MockGameRecord
	catalog *MockGameCatalog
	lobby   *MockLobby
	games   int
}

func newHarness(t *testing.T, mutate ...func(*Settings)) *roomHarness {
	t.Helper()
	settings := DefaultSettings()
	for _, m := range mutate {
		m(&settings)
	}
	require.NoError(t, settings.Validate())

	h := &roomHarness{
		t:       t,
		now:     t0,
		record:  &MockGameRecord{},
		catalog: &MockGameCatalog{},
		lobby:   &MockLobby{},
	}
	h.room = NewRoom("room-1", RoomOptions{OwnerUserId: "u-alice", CatalogReference: "cat"}, settings, h.catalog, h.record, h.lobby, t0)
	n := 0
	h.room.newSessionId = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return h
}

func (h *roomHarness) join(name string) (*recordingConn, *Player) {
	h.t.Helper()
	conn := &recordingConn{}
	sessionId, err := h.tryJoin("u-"+name, name, conn)
	require.NoError(h.t, err)
	p := h.room.state.PlayerBySession(sessionId)
	require.NotNil(h.t, p)
	return conn, p
}

func (h *roomHarness) tryJoin(userId, name string, conn Conn) (string, error) {
	req := newJoinRequest(h.room.id, userId, name, conn)
	h.room.handleJoin(req)
	res := <-req.resp
	return res.sessionId, res.err
}

func (h *roomHarness) reconnect(userId, sessionId string, conn Conn) error {
	req := newReconnectRequest(h.room.id, userId, sessionId, conn)
	h.room.handleReconnect(req)
	return (<-req.resp).err
}

func (h *roomHarness) send(from Conn, p wire.ClientPacket) {
	h.room.handlePacket(ClientPacketEnvelope{packet: p, from: from})
}

func (h *roomHarness) guess(from Conn, text string) {
	h.send(from, wire.ClientPacket{Kind: wire.ClientGuess, Text: text})
}

func (h *roomHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.room.handleTick(h.now)
}

func (h *roomHarness) expectGame(rounds ...domain.CatalogRound) {
	h.games++
	id := fmt.Sprintf("game-%d", h.games)
	h.record.On("CreatePlayedGame", mock.Anything, "cat", h.room.state.OwnerUserId()).Return(id, nil).Once()
	h.catalog.On("GetRoundsForGame", mock.Anything, id).Return(rounds, nil).Once()
}

// start runs the start countdown through to the first round.
func (h *roomHarness) start(owner Conn, rounds ...domain.CatalogRound) {
	h.t.Helper()
	h.expectGame(rounds...)
	h.send(owner, wire.ClientPacket{Kind: wire.ClientStartGame})
	require.Equal(h.t, PhaseCountdown, h.room.state.Phase())
	h.advance(time.Duration(h.room.settings.StartCountdown) * h.room.settings.CountdownStep)
	require.Equal(h.t, PhaseRoundActive, h.room.state.Phase())
}

func playerState(t *testing.T, snap *wire.Snapshot, id string) wire.PlayerState {
	t.Helper()
	require.NotNil(t, snap)
	for _, p := range snap.Players {
		if p.Id == id {
			return p
		}
	}
	t.Fatalf("player %s not in snapshot", id)
	return wire.PlayerState{}
}

func TestRoom_SingleRoundWonInFirstCycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, aliceP := h.join("alice")
	bob, _ := h.join("bob")

	welcome, ok := alice.last(wire.ServerWelcome)
	require.True(t, ok)
	assert.Equal(t, aliceP.SessionId, welcome.SessionId)
	assert.Equal(t, aliceP.Id, welcome.PlayerId)

	h.expectGame(abbey)
	h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame})
	snap := bob.snapshot()
	assert.Equal(t, int32(PhaseCountdown), snap.Phase)
	assert.Equal(t, int32(3), snap.Counter)
	assert.Equal(t, int32(0), snap.Round)
	assert.Equal(t, int32(1), snap.TotalRounds)

	h.advance(time.Second)
	assert.Equal(t, int32(2), bob.snapshot().Counter)

	h.advance(2 * time.Second)
	snap = bob.snapshot()
	require.Equal(t, int32(PhaseRoundActive), snap.Phase)
	assert.Equal(t, int32(1), snap.Round)
	assert.Equal(t, int32(1), snap.Cycle)
	assert.Equal(t, int64(20000), snap.RemainingMs)
	assert.Empty(t, snap.Key)
	require.Len(t, snap.Cues, 5)
	assert.Equal(t, wire.CueFragment{Order: 1, Text: "WESTMINSTER ABBEY", Revealed: true}, snap.Cues[0])
	assert.Equal(t, wire.CueFragment{Order: 2, Text: "EDWARD ABBEY", Revealed: true}, snap.Cues[1])
	assert.Equal(t, wire.CueFragment{Order: 3}, snap.Cues[2])

	h.guess(alice, "  abbey ")
	snap = bob.snapshot()
	require.Equal(t, int32(PhaseRoundEnd), snap.Phase)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, wire.Winner{PlayerId: aliceP.Id, DisplayName: "alice", Points: 40}, *snap.Winner)
	assert.Equal(t, "Abbey", snap.Key)
	assert.Equal(t, "ABBEY THEATRE", snap.Cues[4].Text)
	a := playerState(t, snap, aliceP.Id)
	assert.Equal(t, int32(40), a.RoundScore)
	assert.Equal(t, int32(40), a.CumulativeScore)
	assert.Equal(t, int32(40), a.SessionScore)

	h.guess(bob, "abbey")
	assert.Equal(t, 1, bob.count(wire.ServerWrongGuess))
	assert.Zero(t, alice.count(wire.ServerWrongGuess))
	assert.Equal(t, int32(40), playerState(t, bob.snapshot(), aliceP.Id).CumulativeScore)

	h.advance(5 * time.Second)
	snap = bob.snapshot()
	assert.Equal(t, int32(PhaseGameEnd), snap.Phase)
	assert.Nil(t, snap.Winner)
	assert.Zero(t, h.room.clock.Pending())

	h.record.AssertExpectations(t)
	h.catalog.AssertExpectations(t)
}

func TestRoom_PointsShrinkWithEachCycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, aliceP := h.join("alice")
	bob, _ := h.join("bob")
	h.start(alice, abbey)

	h.advance(20 * time.Second)
	snap := alice.snapshot()
	assert.Equal(t, int32(2), snap.Cycle)
	assert.True(t, snap.Cues[2].Revealed)
	assert.False(t, snap.Cues[3].Revealed)

	h.guess(bob, "bridge")
	assert.Equal(t, 1, bob.count(wire.ServerWrongGuess))
	assert.Equal(t, PhaseRoundActive, h.room.state.Phase())

	h.advance(15 * time.Second)
	assert.Equal(t, int32(3), alice.snapshot().Cycle)
	assert.True(t, alice.snapshot().Cues[3].Revealed)

	h.guess(alice, "Abbey")
	snap = alice.snapshot()
	require.NotNil(t, snap.Winner)
	assert.Equal(t, int32(DefaultScoreTable.ScoreFor(3)), snap.Winner.Points)
	assert.Equal(t, int32(20), playerState(t, snap, aliceP.Id).CumulativeScore)
}

func TestRoom_RoundRunsOutAndNextRoundStartsClean(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	h.join("bob")
	h.start(alice, abbey, bridge)

	h.advance(45 * time.Second)
	assert.Equal(t, int32(MaxCycle), alice.snapshot().Cycle)
	assert.True(t, alice.snapshot().Cues[4].Revealed)

	h.advance(5 * time.Second)
	snap := alice.snapshot()
	require.Equal(t, int32(PhaseRoundEnd), snap.Phase)
	assert.Nil(t, snap.Winner)
	assert.Equal(t, "Abbey", snap.Key)
	assert.Equal(t, int32(5), snap.Counter)

	h.advance(5 * time.Second)
	snap = alice.snapshot()
	require.Equal(t, int32(PhaseCountdown), snap.Phase)
	assert.Equal(t, int32(3), snap.Counter)
	assert.Empty(t, snap.Cues)

	h.advance(3 * time.Second)
	snap = alice.snapshot()
	require.Equal(t, int32(PhaseRoundActive), snap.Phase)
	assert.Equal(t, int32(2), snap.Round)
	assert.Equal(t, int32(1), snap.Cycle)
	assert.Equal(t, "TOWER BRIDGE", snap.Cues[0].Text)
	assert.False(t, snap.Cues[2].Revealed)
	assert.Empty(t, snap.Key)
}

func TestRoom_GuessRacingLastCycleExpiry(t *testing.T) {
	t.Parallel()

	t.Run("expiry handled first", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		h.join("bob")
		h.start(alice, abbey)

		h.advance(50 * time.Second)
		h.guess(alice, "abbey")

		assert.Equal(t, 1, alice.count(wire.ServerWrongGuess))
		assert.Nil(t, h.room.state.Winner())
		assert.Zero(t, h.room.state.Score(h.room.players[alice]).Cumulative)
	})

	t.Run("guess handled first", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		h.join("bob")
		h.start(alice, abbey)

		h.advance(45 * time.Second)
		h.guess(alice, "abbey")
		h.advance(4 * time.Second)

		require.NotNil(t, h.room.state.Winner())
		assert.Equal(t, DefaultScoreTable.ScoreFor(MaxCycle), h.room.state.Winner().Points)
		assert.Equal(t, PhaseRoundEnd, h.room.state.Phase())
	})
}

func TestRoom_FirstCorrectGuessWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, aliceP := h.join("alice")
	bob, bobP := h.join("bob")
	h.start(alice, abbey)

	h.guess(bob, "ABBEY")
	h.guess(alice, "abbey")

	assert.Equal(t, bobP.Id, h.room.state.Winner().PlayerId)
	assert.Equal(t, 1, alice.count(wire.ServerWrongGuess))
	assert.Zero(t, h.room.state.Score(aliceP.Id).Round)
}

func TestRoom_GuessOutsideActiveRound(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	h.join("bob")

	h.guess(alice, "abbey")
	h.expectGame(abbey)
	h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame})
	h.guess(alice, "abbey")

	assert.Equal(t, 2, alice.count(wire.ServerWrongGuess))
	assert.Equal(t, PhaseCountdown, h.room.state.Phase())
}

func TestRoom_PauseKeepsRemainingTime(t *testing.T) {
	t.Parallel()

	for _, policy := range []PausePolicy{PauseOwnerOnly, PauseAnyPlayer} {
		t.Run(fmt.Sprintf("policy %d", policy), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, func(s *Settings) { s.PausePolicy = policy })
			alice, _ := h.join("alice")
			bob, _ := h.join("bob")

			h.send(alice, wire.ClientPacket{Kind: wire.ClientPause})
			assert.Equal(t, StatusPlaying, h.room.state.PlayStatus(), "pause is a no-op in the lobby")

			h.start(alice, abbey)
			h.advance(5 * time.Second)

			h.send(bob, wire.ClientPacket{Kind: wire.ClientPause})
			if policy == PauseOwnerOnly {
				assert.Equal(t, []string{CodeNotAllowed}, bob.errorCodes())
				assert.Equal(t, StatusPlaying, h.room.state.PlayStatus())
				h.send(alice, wire.ClientPacket{Kind: wire.ClientPause})
			}
			require.Equal(t, StatusPaused, h.room.state.PlayStatus())
			assert.Equal(t, int32(StatusPaused), alice.snapshot().PlayStatus)

			h.advance(time.Minute)
			assert.Equal(t, 1, h.room.state.Cycle())

			h.guess(alice, "abbey")
			assert.Equal(t, 1, alice.count(wire.ServerWrongGuess))
			assert.Nil(t, h.room.state.Winner())

			h.send(alice, wire.ClientPacket{Kind: wire.ClientResume})
			require.Equal(t, StatusPlaying, h.room.state.PlayStatus())
			assert.Equal(t, int64(15000), alice.snapshot().RemainingMs)

			h.advance(15*time.Second - time.Millisecond)
			assert.Equal(t, 1, h.room.state.Cycle())
			h.advance(time.Millisecond)
			assert.Equal(t, 2, h.room.state.Cycle())
		})
	}
}

func TestRoom_PauseFreezesCountdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	h.join("bob")

	h.expectGame(abbey)
	h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame})
	h.advance(time.Second)
	h.send(alice, wire.ClientPacket{Kind: wire.ClientPause})
	h.advance(time.Hour)
	assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	assert.Equal(t, 2, h.room.state.Counter())

	h.send(alice, wire.ClientPacket{Kind: wire.ClientResume})
	h.advance(2 * time.Second)
	assert.Equal(t, PhaseRoundActive, h.room.state.Phase())
}

// finishGame plays a one round game that alice wins in the first cycle.
func finishGame(t *testing.T, h *roomHarness, alice Conn) {
	t.Helper()
	h.start(alice, abbey)
	h.guess(alice, "abbey")
	h.advance(time.Duration(h.room.settings.InterRoundCountdown) * time.Second)
	require.Equal(t, PhaseGameEnd, h.room.state.Phase())
}

func TestRoom_RestartVotes(t *testing.T) {
	t.Parallel()

	t.Run("any vote restarts", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(s *Settings) { s.RestartPolicy = RestartOnAnyVote })
		alice, aliceP := h.join("alice")
		bob, _ := h.join("bob")
		finishGame(t, h, alice)

		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: false})
		assert.Equal(t, PhaseGameEnd, h.room.state.Phase())
		assert.Equal(t, int32(1), bob.snapshot().VotesCast)

		h.expectGame(bridge)
		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})

		snap := bob.snapshot()
		require.Equal(t, int32(PhaseCountdown), snap.Phase)
		assert.Equal(t, int32(0), snap.Round)
		assert.Equal(t, int32(0), snap.VotesCast)
		a := playerState(t, snap, aliceP.Id)
		assert.Zero(t, a.CumulativeScore)
		assert.Equal(t, int32(40), a.SessionScore)
		assert.Equal(t, "game-2", h.room.state.PlayedGameId())
		h.record.AssertExpectations(t)
	})

	t.Run("unanimous waits for every connected player", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(s *Settings) { s.RestartPolicy = RestartOnUnanimousVote })
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		finishGame(t, h, alice)

		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		snap := bob.snapshot()
		assert.Equal(t, int32(PhaseGameEnd), snap.Phase)
		assert.Equal(t, int32(1), snap.VotesFor)
		assert.Equal(t, int32(1), snap.VotesCast)

		h.expectGame(bridge)
		h.send(alice, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	})

	t.Run("unanimous completes when the holdout drops", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(s *Settings) { s.RestartPolicy = RestartOnUnanimousVote })
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		finishGame(t, h, alice)

		h.send(alice, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		h.expectGame(bridge)
		h.room.handleDisconnect(bob)
		assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	})

	t.Run("owner restarts unconditionally", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(s *Settings) { s.RestartPolicy = RestartOnUnanimousVote })
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		finishGame(t, h, alice)

		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestart})
		assert.Equal(t, []string{CodeNotOwner}, bob.errorCodes())

		h.expectGame(bridge)
		h.send(alice, wire.ClientPacket{Kind: wire.ClientRestart})
		assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	})

	t.Run("failed restart stays at game end", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		finishGame(t, h, alice)

		h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("", domain.UnexpectedDatabaseError).Once()
		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		assert.Equal(t, PhaseGameEnd, h.room.state.Phase())
		assert.Equal(t, []string{CodeStartFailed}, bob.errorCodes())
	})

	t.Run("failed restart is not retried on roster change", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		carol, _ := h.join("carol")
		finishGame(t, h, alice)

		h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("", domain.UnexpectedDatabaseError).Once()
		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		require.Equal(t, PhaseGameEnd, h.room.state.Phase())
		assert.Equal(t, int32(0), alice.snapshot().VotesCast)

		h.room.handleDisconnect(carol)
		assert.Equal(t, PhaseGameEnd, h.room.state.Phase())
		h.record.AssertNumberOfCalls(t, "CreatePlayedGame", 2)

		h.expectGame(bridge)
		h.send(alice, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	})

	t.Run("restart completed by a drop reports failure to supporters", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, func(s *Settings) { s.RestartPolicy = RestartOnUnanimousVote })
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		carol, _ := h.join("carol")
		finishGame(t, h, alice)

		h.send(alice, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})
		h.send(bob, wire.ClientPacket{Kind: wire.ClientRestartVote, Vote: true})

		h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("", domain.UnexpectedDatabaseError).Once()
		h.room.handleDisconnect(carol)
		assert.Equal(t, PhaseGameEnd, h.room.state.Phase())
		assert.Equal(t, []string{CodeStartFailed}, alice.errorCodes())
		assert.Equal(t, []string{CodeStartFailed}, bob.errorCodes())
		assert.Equal(t, int32(0), alice.snapshot().VotesCast)

		h.advance(h.room.settings.ReconnectionGrace)
		assert.Equal(t, PhaseGameEnd, h.room.state.Phase())
		h.record.AssertNumberOfCalls(t, "CreatePlayedGame", 2)
	})
}

func TestRoom_StartGameRejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc  string
		setup func(h *roomHarness)
		from  string
		pkt   wire.ClientPacket
		code  string
	}{
		{
			desc: "not the owner",
			from: "bob",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame},
			code: CodeNotOwner,
		},
		{
			desc: "owner id does not match sender",
			from: "alice",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame, OwnerId: "u-bob"},
			code: CodeNotOwner,
		},
		{
			desc: "played game cannot be created",
			setup: func(h *roomHarness) {
				h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("", domain.ErrCatalogNotFound).Once()
			},
			from: "alice",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame},
			code: CodeStartFailed,
		},
		{
			desc: "rounds cannot be loaded",
			setup: func(h *roomHarness) {
				h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("g", nil).Once()
				h.catalog.On("GetRoundsForGame", mock.Anything, "g").Return(nil, context.DeadlineExceeded).Once()
			},
			from: "alice",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame},
			code: CodeStartFailed,
		},
		{
			desc: "no rounds",
			setup: func(h *roomHarness) {
				h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("g", nil).Once()
				h.catalog.On("GetRoundsForGame", mock.Anything, "g").Return([]domain.CatalogRound{}, nil).Once()
			},
			from: "alice",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame},
			code: CodeStartFailed,
		},
		{
			desc: "malformed round",
			setup: func(h *roomHarness) {
				bad := abbey
				bad.Cues[4] = ""
				h.record.On("CreatePlayedGame", mock.Anything, "cat", "u-alice").Return("g", nil).Once()
				h.catalog.On("GetRoundsForGame", mock.Anything, "g").Return([]domain.CatalogRound{bad}, nil).Once()
			},
			from: "alice",
			pkt:  wire.ClientPacket{Kind: wire.ClientStartGame},
			code: CodeStartFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			conns := map[string]*recordingConn{}
			conns["alice"], _ = h.join("alice")
			conns["bob"], _ = h.join("bob")
			if tc.setup != nil {
				tc.setup(h)
			}

			h.send(conns[tc.from], tc.pkt)

			assert.Equal(t, PhaseLobby, h.room.state.Phase())
			assert.Equal(t, []string{tc.code}, conns[tc.from].errorCodes())
			for name, c := range conns {
				if name != tc.from {
					assert.Empty(t, c.errorCodes(), "only the requester is told")
				}
			}
			h.record.AssertExpectations(t)
			h.catalog.AssertExpectations(t)
		})
	}

	t.Run("not enough players", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame})
		assert.Equal(t, []string{CodeNotEnoughPlayers}, alice.errorCodes())
		assert.Equal(t, PhaseLobby, h.room.state.Phase())
	})

	t.Run("already started", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		alice, _ := h.join("alice")
		h.join("bob")
		h.start(alice, abbey)
		h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame})
		assert.Equal(t, []string{CodeInvalidPhase}, alice.errorCodes())
	})
}

func TestRoom_StartGameCatalogOverride(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	h.join("bob")

	h.record.On("CreatePlayedGame", mock.Anything, "travel", "u-alice").Return("g", nil).Once()
	h.catalog.On("GetRoundsForGame", mock.Anything, "g").Return([]domain.CatalogRound{bridge}, nil).Once()
	h.send(alice, wire.ClientPacket{Kind: wire.ClientStartGame, CatalogReference: "travel", OwnerId: "u-alice"})

	assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	assert.Equal(t, "travel", h.room.state.CatalogReference())
	h.record.AssertExpectations(t)
}

func TestRoom_ReconnectWithinGrace(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	bob, bobP := h.join("bob")
	h.start(alice, abbey, bridge)
	h.guess(bob, "abbey")

	h.room.handleDisconnect(bob)
	assert.True(t, bob.isReleased())
	assert.False(t, playerState(t, alice.snapshot(), bobP.Id).Connected)

	h.advance(10 * time.Second)
	assert.Equal(t, PhaseRoundActive, h.room.state.Phase(), "the game goes on without bob")

	assert.ErrorIs(t, h.reconnect("u-mallory", bobP.SessionId, &recordingConn{}), ErrUnknownSession)

	newBob := &recordingConn{}
	require.NoError(t, h.reconnect("u-bob", bobP.SessionId, newBob))
	welcome, ok := newBob.last(wire.ServerWelcome)
	require.True(t, ok)
	assert.Equal(t, bobP.SessionId, welcome.SessionId)

	b := playerState(t, alice.snapshot(), bobP.Id)
	assert.True(t, b.Connected)
	assert.Equal(t, int32(40), b.CumulativeScore)
	assert.Equal(t, int32(40), b.SessionScore)

	h.advance(10 * time.Second)
	assert.NotNil(t, h.room.state.Player(bobP.Id), "grace timer was cancelled")
}

func TestRoom_ReconnectAfterGraceExpired(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	bob, bobP := h.join("bob")

	h.room.handleDisconnect(bob)
	h.advance(15 * time.Second)
	assert.Nil(t, h.room.state.Player(bobP.Id))
	assert.Len(t, alice.snapshot().Players, 1)

	assert.ErrorIs(t, h.reconnect("u-bob", bobP.SessionId, &recordingConn{}), ErrUnknownSession)

	sessionId, err := h.tryJoin("u-bob", "bob", &recordingConn{})
	require.NoError(t, err)
	assert.NotEqual(t, bobP.SessionId, sessionId)
}

func TestRoom_RejoinInsideGraceReclaimsSlot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("alice")
	bob, bobP := h.join("bob")

	_, err := h.tryJoin("u-bob", "bob", &recordingConn{})
	assert.ErrorIs(t, err, ErrAlreadyInRoom, "bob is still connected")

	h.room.handleDisconnect(bob)
	sessionId, err := h.tryJoin("u-bob", "bob", &recordingConn{})
	require.NoError(t, err)
	assert.Equal(t, bobP.SessionId, sessionId)
	assert.True(t, bobP.Connected)
}

func TestRoom_GraceRunsWhilePaused(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	bob, bobP := h.join("bob")
	h.start(alice, abbey)

	h.send(alice, wire.ClientPacket{Kind: wire.ClientPause})
	h.room.handleDisconnect(bob)
	h.advance(15 * time.Second)

	assert.Nil(t, h.room.state.Player(bobP.Id))
	assert.Equal(t, StatusPaused, h.room.state.PlayStatus())
}

func TestRoom_StaleDisconnectIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("alice")
	bob, bobP := h.join("bob")

	h.room.handleDisconnect(bob)
	require.NoError(t, h.reconnect("u-bob", bobP.SessionId, &recordingConn{}))
	h.room.handleDisconnect(bob)

	assert.True(t, bobP.Connected)
}

func TestRoom_Capacity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(s *Settings) { s.MaxPlayers = 2 })
	h.join("alice")
	bob, _ := h.join("bob")

	h.room.handleDisconnect(bob)
	_, err := h.tryJoin("u-carol", "carol", &recordingConn{})
	assert.ErrorIs(t, err, ErrRoomFull, "players in grace keep their slot")

	_, err = h.tryJoin("", "nobody", &recordingConn{})
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestRoom_OwnerHandOver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	bob, bobP := h.join("bob")
	h.join("carol")

	h.send(alice, wire.ClientPacket{Kind: wire.ClientLeave})
	assert.True(t, alice.isReleased())
	assert.True(t, playerState(t, bob.snapshot(), bobP.Id).Owner)

	h.expectGame(abbey)
	h.send(bob, wire.ClientPacket{Kind: wire.ClientStartGame})
	assert.Equal(t, PhaseCountdown, h.room.state.Phase())
}

func TestRoom_AbsentCreatorHandsOverOnJoin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	bob, bobP := h.join("bob")
	carol, carolP := h.join("carol")

	assert.Equal(t, "u-bob", h.room.state.OwnerUserId())
	snap := carol.snapshot()
	assert.True(t, playerState(t, snap, bobP.Id).Owner)
	assert.False(t, playerState(t, snap, carolP.Id).Owner)

	h.send(carol, wire.ClientPacket{Kind: wire.ClientStartGame})
	assert.Equal(t, []string{CodeNotOwner}, carol.errorCodes())

	h.expectGame(abbey)
	h.send(bob, wire.ClientPacket{Kind: wire.ClientStartGame})
	assert.Equal(t, PhaseCountdown, h.room.state.Phase())
	assert.Empty(t, bob.errorCodes())
}

func TestRoom_SlowClientIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	bob, bobP := h.join("bob")

	bob.full = true
	h.join("carol")

	assert.True(t, bob.isReleased())
	assert.False(t, playerState(t, alice.snapshot(), bobP.Id).Connected)
	assert.True(t, h.room.presence.inGrace(bobP.Id))
}

func TestRoom_SnapshotsAreOrdered(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	alice, _ := h.join("alice")
	h.join("bob")
	h.start(alice, abbey)
	h.advance(20 * time.Second)

	var last uint64
	for _, p := range alice.packets {
		if p.Kind != wire.ServerSnapshot {
			continue
		}
		assert.Greater(t, p.Snapshot.Seq, last)
		last = p.Snapshot.Seq
	}
}

func TestRoom_IdleDisposal(t *testing.T) {
	t.Parallel()

	t.Run("nobody ever joins", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lobby.On("RemoveRoom", "room-1").Return().Once()

		h.advance(179 * time.Second)
		assert.False(t, h.room.disposed)
		h.advance(time.Second)
		assert.True(t, h.room.disposed)

		h.advance(time.Hour)
		h.room.dispose("again")
		h.lobby.AssertExpectations(t)
	})

	t.Run("lobby empties before a game starts", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lobby.On("RemoveRoom", "room-1").Return().Once()

		h.advance(100 * time.Second)
		alice, _ := h.join("alice")
		h.advance(20 * time.Second)
		h.send(alice, wire.ClientPacket{Kind: wire.ClientLeave})

		h.advance(59 * time.Second)
		assert.False(t, h.room.disposed)
		h.advance(time.Second)
		assert.True(t, h.room.disposed)
		h.lobby.AssertExpectations(t)
	})

	t.Run("joining keeps the room alive", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.advance(100 * time.Second)
		h.join("alice")
		h.advance(time.Hour)
		assert.False(t, h.room.disposed)
	})

	t.Run("everyone leaves mid game", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lobby.On("RemoveRoom", "room-1").Return().Once()
		alice, _ := h.join("alice")
		bob, _ := h.join("bob")
		h.start(alice, abbey, bridge)

		h.send(alice, wire.ClientPacket{Kind: wire.ClientLeave})
		h.room.handleDisconnect(bob)
		h.advance(15 * time.Second)
		require.Empty(t, h.room.state.Players())

		h.advance(179 * time.Second)
		assert.False(t, h.room.disposed)
		h.advance(time.Second)
		require.True(t, h.room.disposed)

		assert.Zero(t, h.room.clock.Pending())
		assert.Zero(t, h.room.presence.clock.Pending())
		phase := h.room.state.Phase()
		h.advance(time.Hour)
		assert.Equal(t, phase, h.room.state.Phase(), "no timer fires after disposal")
		h.lobby.AssertExpectations(t)
	})
}

func TestRoom_GameLoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.lobby.On("RemoveRoom", "room-1").Return().Once()
	go h.room.GameLoop()

	alice := &recordingConn{}
	sessionId, err := h.room.RequestJoin(context.Background(), newJoinRequest("room-1", "u-alice", "alice", alice))
	require.NoError(t, err)
	assert.Equal(t, "id-2", sessionId)

	h.room.Send(context.Background(), ClientPacketEnvelope{packet: wire.ClientPacket{Kind: wire.ClientStartGame}, from: alice})
	h.room.PingPlayers()

	h.room.CloseAndRelease()
	<-h.room.Done()
	assert.True(t, alice.isReleased())
	assert.Equal(t, []string{CodeNotEnoughPlayers}, alice.errorCodes())
	assert.Equal(t, 1, alice.pingCount())

	_, err = h.room.RequestJoin(context.Background(), newJoinRequest("room-1", "u-bob", "bob", &recordingConn{}))
	assert.ErrorIs(t, err, ErrRoomClosed)
	h.lobby.AssertExpectations(t)
}
