package game

import "errors"

var (
	ErrRoomNotFound     = errors.New("room-not-found")
	ErrRoomFull         = errors.New("room-full")
	ErrRoomClosed       = errors.New("room-closed")
	ErrAlreadyInRoom    = errors.New("already-in-room")
	ErrUnknownSession   = errors.New("unknown-session")
	ErrIdentityRequired = errors.New("identity-required")
)

var (
	ErrSendBufferFull   = errors.New("send-buffer-full")
	ErrConnectionClosed = errors.New("connection-closed")
)

var ErrIllegalTransition = errors.New("illegal-transition")

// Codes sent to a single client in an error packet.
const (
	CodeStartFailed      = "start-failed"
	CodeNotOwner         = "not-owner"
	CodeNotAllowed       = "not-allowed"
	CodeNotEnoughPlayers = "not-enough-players"
	CodeInvalidPhase     = "invalid-phase"
)
