package game

import (
	"context"
	"time"
)

const pingInterval = 30 * time.Second

type roomCreateRequest struct {
	opts RoomOptions
	resp chan string
}

type roomLookup struct {
	roomId string
	resp   chan *Room
}

// lobby owns the set of live rooms and drives their clocks. Rooms run on
// their own goroutines; the lobby only forwards ticks and routes lookups.
type lobby struct {
	rooms map[string]*Room

	createReqs     chan roomCreateRequest
	lookups        chan roomLookup
	removeRoomChan chan string
	stop           chan struct{}
	stopped        chan struct{}

	settings      Settings
	catalog       GameCatalog
	record        GameRecord
	idGenerator   UniqueIdGenerator
	tickerCreator PeriodicTickerChannelCreator
	tickInterval  time.Duration
	now           func() time.Time
}

func NewLobby(settings Settings, catalog GameCatalog, record GameRecord, idgen UniqueIdGenerator, tickerCreator PeriodicTickerChannelCreator, tickInterval time.Duration) *lobby {
	return &lobby{
		rooms:          map[string]*Room{},
		createReqs:     make(chan roomCreateRequest, 32),
		lookups:        make(chan roomLookup, 256),
		removeRoomChan: make(chan string, 32),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
		settings:       settings,
		catalog:        catalog,
		record:         record,
		idGenerator:    idgen,
		tickerCreator:  tickerCreator,
		tickInterval:   tickInterval,
		now:            time.Now,
	}
}

func (l *lobby) CreateRoom(ctx context.Context, opts RoomOptions) (string, error) {
	req := roomCreateRequest{opts: opts, resp: make(chan string, 1)}
	select {
	case l.createReqs <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.stop:
		return "", ErrRoomClosed
	}
	select {
	case id := <-req.resp:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.stop:
		return "", ErrRoomClosed
	}
}

func (l *lobby) lookup(ctx context.Context, roomId string) (*Room, error) {
	req := roomLookup{roomId: roomId, resp: make(chan *Room, 1)}
	select {
	case l.lookups <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.stop:
		return nil, ErrRoomNotFound
	}
	select {
	case room := <-req.resp:
		if room == nil {
			return nil, ErrRoomNotFound
		}
		return room, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.stop:
		return nil, ErrRoomNotFound
	}
}

// JoinRoom returns the room so the caller can wire the client to it, along
// with the session id the client needs to reconnect.
func (l *lobby) JoinRoom(ctx context.Context, roomId, userId, username string, conn Conn) (RoomChannel, string, error) {
	room, err := l.lookup(ctx, roomId)
	if err != nil {
		return nil, "", err
	}
	sessionId, err := room.RequestJoin(ctx, newJoinRequest(roomId, userId, username, conn))
	if err != nil {
		return nil, "", err
	}
	return room, sessionId, nil
}

func (l *lobby) Reconnect(ctx context.Context, roomId, userId, sessionId string, conn Conn) (RoomChannel, error) {
	if sessionId == "" {
		return nil, ErrUnknownSession
	}
	room, err := l.lookup(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if _, err := room.RequestJoin(ctx, newReconnectRequest(roomId, userId, sessionId, conn)); err != nil {
		return nil, err
	}
	return room, nil
}

func (l *lobby) RemoveRoom(roomId string) {
	select {
	case l.removeRoomChan <- roomId:
	case <-l.stop:
	}
}

// Stop disposes every room and waits for the actor to return.
func (l *lobby) Stop() {
	close(l.stop)
	<-l.stopped
}

func (l *lobby) LobbyActor(started chan struct{}) {
	ticker := l.tickerCreator.Create(l.tickInterval)
	pingTicker := l.tickerCreator.Create(pingInterval)

	close(started)

	for {
		select {
		case now := <-ticker:
			for _, r := range l.rooms {
				r.Tick(now)
			}
		case <-pingTicker:
			for _, r := range l.rooms {
				r.PingPlayers()
			}

		case req := <-l.createReqs:
			l.handleCreateRoom(req)

		case req := <-l.lookups:
			req.resp <- l.rooms[req.roomId]

		case roomId := <-l.removeRoomChan:
			l.handleRemoveRoom(roomId)

		case <-l.stop:
			for id, r := range l.rooms {
				r.CloseAndRelease()
				delete(l.rooms, id)
				l.idGenerator.Dispose(id)
			}
			close(l.stopped)
			return
		}
	}
}

func (l *lobby) handleCreateRoom(req roomCreateRequest) {
	id := l.idGenerator.Generate()
	room := NewRoom(id, req.opts, l.settings, l.catalog, l.record, l, l.now())
	l.rooms[id] = room
	go room.GameLoop()
	req.resp <- id
}

// handleRemoveRoom is reached once the room has disposed itself.
func (l *lobby) handleRemoveRoom(roomId string) {
	if _, ok := l.rooms[roomId]; !ok {
		return
	}
	delete(l.rooms, roomId)
	l.idGenerator.Dispose(roomId)
}
