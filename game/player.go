package game

import (
	"context"
	"sync"
	"sync/atomic"

	"cueword/wire"

	"golang.org/x/time/rate"
)

// throttledGuess answers guesses dropped by the rate limiter the same way
// the room answers a wrong one.
var throttledGuess = wire.MarshalServerPacket(wire.ServerPacket{Kind: wire.ServerWrongGuess})

// Client is one websocket connection. ReadPump and WritePump run on their own
// goroutines; the room only ever calls Send, Ping and Release.
type Client struct {
	userId   string
	username string

	rateLimiter *rate.Limiter
	outbox      chan []byte
	pingChan    chan struct{}
	room        RoomChannel

	ctx         context.Context
	cancelCtx   context.CancelFunc
	releaseOnce sync.Once
	closeReason atomic.Pointer[string]
}

func NewClient(userId, username string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		userId:      userId,
		username:    username,
		rateLimiter: rate.NewLimiter(2, 5),
		outbox:      make(chan []byte, 256),
		pingChan:    make(chan struct{}, 1),
		ctx:         ctx,
		cancelCtx:   cancel,
	}
}

func (c *Client) SetRoom(r RoomChannel) {
	c.room = r
}

func (c *Client) Send(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) Ping() {
	select {
	case c.pingChan <- struct{}{}:
	default:
	}
}

// Release stops both pumps. The first reason wins and is sent in the close
// frame.
func (c *Client) Release(reason string) {
	c.releaseOnce.Do(func() {
		c.closeReason.Store(&reason)
		c.cancelCtx()
	})
}

func (c *Client) ReadPump(socket WebsocketConnection) {
	defer c.room.Disconnect(c.ctx, c)

	for {
		data, err := socket.Read()
		if err != nil {
			return
		}

		packet, err := wire.UnmarshalClientPacket(data)
		if err != nil {
			continue
		}
		if packet.Kind == wire.ClientGuess && !c.rateLimiter.Allow() {
			_ = c.Send(throttledGuess)
			continue
		}

		c.room.Send(c.ctx, ClientPacketEnvelope{packet: packet, from: c})
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) WritePump(socket WebsocketConnection) {
	defer func() {
		reason := ""
		if r := c.closeReason.Load(); r != nil {
			reason = *r
		}
		socket.Close(reason)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.outbox:
			if err := socket.Write(data); err != nil {
				c.room.Disconnect(c.ctx, c)
				return
			}
		case <-c.pingChan:
			if err := socket.Ping(); err != nil {
				c.room.Disconnect(c.ctx, c)
				return
			}
		}
	}
}
