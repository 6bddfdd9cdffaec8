// Package wire holds the binary packets exchanged with game clients. They are
// protobuf messages described by the schema in schema.go; cueword.proto is
// the same schema rendered for client code generators.
package wire

import "errors"

var (
	ErrMalformedPacket = errors.New("malformed-packet")
	ErrUnknownPacket   = errors.New("unknown-packet")
)

type ClientKind int

const (
	ClientUnknown ClientKind = iota
	ClientStartGame
	ClientGuess
	ClientPause
	ClientResume
	ClientRestartVote
	ClientRestart
	ClientLeave
)

// ClientPacket is a decoded client message. Only the fields of its Kind
// are meaningful.
type ClientPacket struct {
	Kind             ClientKind
	CatalogReference string
	OwnerId          string
	Text             string
	Vote             bool
}

type ServerKind int

const (
	ServerUnknown ServerKind = iota
	ServerSnapshot
	ServerWrongGuess
	ServerError
	ServerWelcome
)

type ServerPacket struct {
	Kind            ServerKind
	Snapshot        *Snapshot
	ErrorCode       string
	SessionId       string
	PlayerId        string
	ServerTimestamp int64
}

type CueFragment struct {
	Order    int32
	Text     string
	Revealed bool
}

type PlayerState struct {
	Id              string
	DisplayName     string
	Connected       bool
	Owner           bool
	RoundScore      int32
	CumulativeScore int32
	SessionScore    int32
	Voted           bool
	Vote            bool
}

type Winner struct {
	PlayerId    string
	DisplayName string
	Points      int32
}

// Snapshot is the full view of a room as every client sees it. Unrevealed
// cue texts and the key of a running round are never filled in.
type Snapshot struct {
	RoomId           string
	Seq              uint64
	Phase            int32
	PlayStatus       int32
	Round            int32
	TotalRounds      int32
	Cycle            int32
	Counter          int32
	RemainingMs      int64
	Key              string
	Cues             []CueFragment
	Winner           *Winner
	Players          []PlayerState
	VotesFor         int32
	VotesCast        int32
	ScheduledStartMs int64
}
