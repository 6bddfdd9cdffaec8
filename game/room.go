package game

import (
	"context"
	"time"

	"cueword/logger"
	"cueword/wire"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ClientPacketEnvelope struct {
	packet wire.ClientPacket
	from   Conn
}

type RoomOptions struct {
	OwnerUserId      string
	CatalogReference string
	ScheduledStart   time.Time
}

type roomJoinRequest struct {
	roomId    string
	userId    string
	username  string
	sessionId string
	conn      Conn
	resp      chan joinResult
}

type joinResult struct {
	sessionId string
	err       error
}

func newJoinRequest(roomId, userId, username string, conn Conn) roomJoinRequest {
	return roomJoinRequest{
		roomId:   roomId,
		userId:   userId,
		username: username,
		conn:     conn,
		resp:     make(chan joinResult, 1),
	}
}

func newReconnectRequest(roomId, userId, sessionId string, conn Conn) roomJoinRequest {
	req := newJoinRequest(roomId, userId, "", conn)
	req.sessionId = sessionId
	return req
}

type roomEvent interface{}

type (
	tickEvent       struct{ now time.Time }
	pingEvent       struct{}
	closeEvent      struct{ reason string }
	disconnectEvent struct{ conn Conn }
	joinEvent       struct{ req roomJoinRequest }
	packetEvent     struct{ envelope ClientPacketEnvelope }
)

// Room is one game session. All of its state lives on the GameLoop goroutine
// and every input, ticks included, goes through a single FIFO inbox: whatever
// arrives first is handled first.
type Room struct {
	id       string
	settings Settings
	state    *SessionState

	clock      *Scheduler
	phaseTimer Handle
	presence   *presence
	createdAt  time.Time

	conns   map[string]Conn
	players map[Conn]string
	seq     uint64

	lobby   Lobby
	catalog GameCatalog
	record  GameRecord

	ctx      context.Context
	cancel   context.CancelFunc
	inbox    chan roomEvent
	done     chan struct{}
	disposed bool

	newSessionId func() string
	log          zerolog.Logger
}

func NewRoom(id string, opts RoomOptions, settings Settings, catalog GameCatalog, record GameRecord, lobby Lobby, now time.Time) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:           id,
		settings:     settings,
		state:        NewSessionState(settings.MaxPlayers, opts.OwnerUserId, opts.CatalogReference, opts.ScheduledStart),
		clock:        NewScheduler(now),
		createdAt:    now,
		conns:        make(map[string]Conn),
		players:      make(map[Conn]string),
		lobby:        lobby,
		catalog:      catalog,
		record:       record,
		ctx:          ctx,
		cancel:       cancel,
		inbox:        make(chan roomEvent, 1024),
		done:         make(chan struct{}),
		newSessionId: uuid.NewString,
		log:          logger.Room(id),
	}
	r.presence = newPresence(now, settings.ReconnectionGrace, settings.IdleDispose, r.expireGrace, r.idleExpired)
	r.presence.armIdle(settings.IdleDispose)
	return r
}

func (r *Room) Id() string {
	return r.id
}

func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Tick is dropped when the inbox is full. The next tick carries a later time
// and the schedulers catch up.
func (r *Room) Tick(now time.Time) {
	select {
	case r.inbox <- tickEvent{now}:
	default:
	}
}

func (r *Room) PingPlayers() {
	select {
	case r.inbox <- pingEvent{}:
	default:
	}
}

func (r *Room) Send(ctx context.Context, e ClientPacketEnvelope) {
	r.post(ctx, packetEvent{e})
}

func (r *Room) Disconnect(ctx context.Context, c Conn) {
	r.post(ctx, disconnectEvent{c})
}

// RequestJoin admits a new player, or a returning one when the request
// carries a session id. It returns the session id the client must keep.
func (r *Room) RequestJoin(ctx context.Context, req roomJoinRequest) (string, error) {
	if !r.post(ctx, joinEvent{req}) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrRoomClosed
	}
	select {
	case res := <-req.resp:
		return res.sessionId, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.done:
		return "", ErrRoomClosed
	}
}

func (r *Room) CloseAndRelease() {
	r.post(context.Background(), closeEvent{reason: ErrRoomClosed.Error()})
	<-r.done
}

func (r *Room) post(ctx context.Context, ev roomEvent) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-r.done:
		return false
	}
}

func (r *Room) GameLoop() {
	for ev := range r.inbox {
		r.handleEvent(ev)
		if r.disposed {
			close(r.done)
			return
		}
	}
}

func (r *Room) handleEvent(ev roomEvent) {
	switch e := ev.(type) {
	case tickEvent:
		r.handleTick(e.now)
	case pingEvent:
		for _, c := range r.conns {
			c.Ping()
		}
	case joinEvent:
		if e.req.sessionId != "" {
			r.handleReconnect(e.req)
		} else {
			r.handleJoin(e.req)
		}
	case disconnectEvent:
		r.handleDisconnect(e.conn)
	case packetEvent:
		r.handlePacket(e.envelope)
	case closeEvent:
		r.dispose(e.reason)
	}
}

func (r *Room) handlePacket(e ClientPacketEnvelope) {
	playerId, ok := r.players[e.from]
	if !ok {
		return
	}

	switch e.packet.Kind {
	case wire.ClientStartGame:
		r.handleStartGame(playerId, e.packet)
	case wire.ClientGuess:
		r.handleGuess(playerId, e.packet.Text)
	case wire.ClientPause:
		r.handlePause(playerId)
	case wire.ClientResume:
		r.handleResume(playerId)
	case wire.ClientRestartVote:
		r.handleRestartVote(playerId, e.packet.Vote)
	case wire.ClientRestart:
		r.handleRestart(playerId)
	case wire.ClientLeave:
		r.handleLeave(playerId)
	}
}

// Outbound.

func (r *Room) snapshot() *wire.Snapshot {
	var remaining time.Duration
	if d, ok := r.clock.Remaining(r.phaseTimer); ok {
		remaining = d
	}
	r.seq++
	return r.state.Snapshot(r.id, r.seq, remaining)
}

func (r *Room) broadcastState() {
	data := wire.MarshalServerPacket(wire.ServerPacket{
		Kind:            wire.ServerSnapshot,
		Snapshot:        r.snapshot(),
		ServerTimestamp: r.clock.Now().UnixMilli(),
	})

	var failed []Conn
	for _, c := range r.conns {
		if err := c.Send(data); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.log.Warn().Str("player", r.players[c]).Msg("send buffer full, dropping connection")
		r.handleDisconnect(c)
	}
}

func (r *Room) sendTo(playerId string, p wire.ServerPacket) {
	c, ok := r.conns[playerId]
	if !ok {
		return
	}
	p.ServerTimestamp = r.clock.Now().UnixMilli()
	if err := c.Send(wire.MarshalServerPacket(p)); err != nil {
		r.log.Warn().Err(err).Str("player", playerId).Msg("direct send failed")
	}
}

func (r *Room) sendError(playerId, code string) {
	r.sendTo(playerId, wire.ServerPacket{Kind: wire.ServerError, ErrorCode: code})
}
