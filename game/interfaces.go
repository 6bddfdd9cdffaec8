package game

import (
	"context"
	"time"

	"cueword/domain"
)

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

// GameRecord creates the played game a session draws its rounds from.
type GameRecord interface {
	CreatePlayedGame(ctx context.Context, catalogId string, ownerId string) (string, error)
}

type GameCatalog interface {
	GetRoundsForGame(ctx context.Context, gameId string) ([]domain.CatalogRound, error)
}

type UniqueIdGenerator interface {
	Generate() string
	Dispose(id string)
}

type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

type WebsocketConnection interface {
	Close(reason string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

// Conn is the room's side of a connected client. Send must never block.
type Conn interface {
	Send(data []byte) error
	Ping()
	Release(reason string)
}

// RoomChannel is the client's side of the room it joined.
type RoomChannel interface {
	Send(ctx context.Context, e ClientPacketEnvelope)
	Disconnect(ctx context.Context, c Conn)
}

type Lobby interface {
	RemoveRoom(roomId string)
}

// Rooms is what the HTTP layer needs from the lobby.
type Rooms interface {
	CreateRoom(ctx context.Context, opts RoomOptions) (string, error)
	JoinRoom(ctx context.Context, roomId, userId, username string, conn Conn) (RoomChannel, string, error)
	Reconnect(ctx context.Context, roomId, userId, sessionId string, conn Conn) (RoomChannel, error)
}
