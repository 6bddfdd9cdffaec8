package game

import (
	"context"
	"sync"
	"time"

	"cueword/domain"
	"cueword/wire"

	"github.com/stretchr/testify/mock"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close(reason string) {
	m.Called(reason)
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- UniqueIdGenerator ---

type MockUniqueIdGenerator struct {
	mock.Mock
}

func (m *MockUniqueIdGenerator) Generate() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockUniqueIdGenerator) Dispose(id string) {
	m.Called(id)
}

// --- PeriodicTickerChannelCreator ---

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}

// --- UserGetter ---

type MockUserGetter struct {
	mock.Mock
}

func (m *MockUserGetter) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

// --- GameRecord / GameCatalog ---

type MockGameRecord struct {
	mock.Mock
}

func (m *MockGameRecord) CreatePlayedGame(ctx context.Context, catalogId string, ownerId string) (string, error) {
	args := m.Called(ctx, catalogId, ownerId)
	return args.String(0), args.Error(1)
}

type MockGameCatalog struct {
	mock.Mock
}

func (m *MockGameCatalog) GetRoundsForGame(ctx context.Context, gameId string) ([]domain.CatalogRound, error) {
	args := m.Called(ctx, gameId)
	rounds, _ := args.Get(0).([]domain.CatalogRound)
	return rounds, args.Error(1)
}

// --- Lobby ---

type MockLobby struct {
	mock.Mock
}

func (m *MockLobby) RemoveRoom(roomId string) {
	m.Called(roomId)
}

// --- Rooms ---

type MockRooms struct {
	mock.Mock
}

func (m *MockRooms) CreateRoom(ctx context.Context, opts RoomOptions) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockRooms) JoinRoom(ctx context.Context, roomId, userId, username string, conn Conn) (RoomChannel, string, error) {
	args := m.Called(ctx, roomId, userId, username, conn)
	room, _ := args.Get(0).(RoomChannel)
	return room, args.String(1), args.Error(2)
}

func (m *MockRooms) Reconnect(ctx context.Context, roomId, userId, sessionId string, conn Conn) (RoomChannel, error) {
	args := m.Called(ctx, roomId, userId, sessionId, conn)
	room, _ := args.Get(0).(RoomChannel)
	return room, args.Error(1)
}

// --- RoomChannel ---

type MockRoom struct {
	mock.Mock
}

func (m *MockRoom) Send(ctx context.Context, e ClientPacketEnvelope) {
	m.Called(ctx, e)
}

func (m *MockRoom) Disconnect(ctx context.Context, c Conn) {
	m.Called(ctx, c)
}

// --- Conn ---

// recordingConn decodes and keeps everything a room sends to it.
type recordingConn struct {
	mu       sync.Mutex
	packets  []wire.ServerPacket
	pings    int
	released bool
	reason   string
	full     bool
}

func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return ErrSendBufferFull
	}
	p, err := wire.UnmarshalServerPacket(data)
	if err != nil {
		panic(err)
	}
	c.packets = append(c.packets, p)
	return nil
}

func (c *recordingConn) Ping() {
	c.mu.Lock()
	c.pings++
	c.mu.Unlock()
}

func (c *recordingConn) Release(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.released {
		c.released = true
		c.reason = reason
	}
}

func (c *recordingConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *recordingConn) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *recordingConn) count(kind wire.ServerKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.packets {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

func (c *recordingConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func (c *recordingConn) last(kind wire.ServerKind) (wire.ServerPacket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.packets) - 1; i >= 0; i-- {
		if c.packets[i].Kind == kind {
			return c.packets[i], true
		}
	}
	return wire.ServerPacket{}, false
}

func (c *recordingConn) snapshot() *wire.Snapshot {
	p, ok := c.last(wire.ServerSnapshot)
	if !ok {
		return nil
	}
	return p.Snapshot
}

func (c *recordingConn) errorCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var codes []string
	for _, p := range c.packets {
		if p.Kind == wire.ServerError {
			codes = append(codes, p.ErrorCode)
		}
	}
	return codes
}
