package game

import (
	"fmt"
	"time"
)

type Phase int32

const (
	PhaseLobby Phase = iota + 1
	PhaseCountdown
	PhaseRoundActive
	PhaseRoundEnd
	PhaseGameEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseCountdown:
		return "countdown"
	case PhaseRoundActive:
		return "round-active"
	case PhaseRoundEnd:
		return "round-end"
	case PhaseGameEnd:
		return "game-end"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

type PlayStatus int32

const (
	StatusPlaying PlayStatus = iota + 1
	StatusPaused
)

var transitions = map[Phase][]Phase{
	PhaseLobby:       {PhaseCountdown},
	PhaseCountdown:   {PhaseRoundActive},
	PhaseRoundActive: {PhaseRoundEnd},
	PhaseRoundEnd:    {PhaseCountdown, PhaseGameEnd},
	PhaseGameEnd:     {PhaseCountdown},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Player is one roster slot. SessionId is private to the player's client
// and is what lets it reclaim the slot after a dropped connection.
type Player struct {
	Id          string
	SessionId   string
	UserId      string
	DisplayName string
	Connected   bool
}

// ScoreEntry holds a player's points. Session survives restarts and is only
// lost when the player leaves the room for good.
type ScoreEntry struct {
	Round      int
	Cumulative int
	Session    int
}

type Winner struct {
	PlayerId    string
	DisplayName string
	Points      int
}

// SessionState is the authoritative state of one room. It is owned by the
// room goroutine and never shared.
type SessionState struct {
	phase      Phase
	playStatus PlayStatus

	round       int
	totalRounds int
	cycle       int
	counter     int

	rounds []*Round
	active *Round
	winner *Winner

	players []*Player
	scores  map[string]*ScoreEntry
	votes   map[string]bool

	capacity         int
	ownerUserId      string
	catalogReference string
	playedGameId     string
	scheduledStart   time.Time
	sessions         int
}

func NewSessionState(capacity int, ownerUserId, catalogReference string, scheduledStart time.Time) *SessionState {
	return &SessionState{
		phase:            PhaseLobby,
		playStatus:       StatusPlaying,
		scores:           make(map[string]*ScoreEntry),
		votes:            make(map[string]bool),
		capacity:         capacity,
		ownerUserId:      ownerUserId,
		catalogReference: catalogReference,
		scheduledStart:   scheduledStart,
	}
}

func (s *SessionState) Phase() Phase {
	return s.phase
}

func (s *SessionState) PlayStatus() PlayStatus {
	return s.playStatus
}

func (s *SessionState) Round() int {
	return s.round
}

func (s *SessionState) TotalRounds() int {
	return s.totalRounds
}

func (s *SessionState) Cycle() int {
	return s.cycle
}

func (s *SessionState) Counter() int {
	return s.counter
}

func (s *SessionState) Winner() *Winner {
	return s.winner
}

func (s *SessionState) ActiveRound() *Round {
	return s.active
}

func (s *SessionState) Players() []*Player {
	return s.players
}

func (s *SessionState) OwnerUserId() string {
	return s.ownerUserId
}

func (s *SessionState) CatalogReference() string {
	return s.catalogReference
}

func (s *SessionState) PlayedGameId() string {
	return s.playedGameId
}

// Started reports whether a game has ever been started in this room.
func (s *SessionState) Started() bool {
	return s.sessions > 0
}

func (s *SessionState) Score(playerId string) ScoreEntry {
	if e, ok := s.scores[playerId]; ok {
		return *e
	}
	return ScoreEntry{}
}

func (s *SessionState) transition(to Phase) error {
	if !canTransition(s.phase, to) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, s.phase, to)
	}
	s.phase = to
	return nil
}

// Roster.

func (s *SessionState) AddPlayer(p *Player) error {
	if s.PlayerByUser(p.UserId) != nil {
		return ErrAlreadyInRoom
	}
	if len(s.players) >= s.capacity {
		return ErrRoomFull
	}
	s.players = append(s.players, p)
	s.scores[p.Id] = &ScoreEntry{}
	return nil
}

func (s *SessionState) RemovePlayer(id string) *Player {
	for i, p := range s.players {
		if p.Id == id {
			s.players = append(s.players[:i], s.players[i+1:]...)
			delete(s.scores, id)
			delete(s.votes, id)
			return p
		}
	}
	return nil
}

func (s *SessionState) Player(id string) *Player {
	for _, p := range s.players {
		if p.Id == id {
			return p
		}
	}
	return nil
}

func (s *SessionState) PlayerByUser(userId string) *Player {
	for _, p := range s.players {
		if p.UserId == userId {
			return p
		}
	}
	return nil
}

func (s *SessionState) PlayerBySession(sessionId string) *Player {
	for _, p := range s.players {
		if p.SessionId == sessionId {
			return p
		}
	}
	return nil
}

func (s *SessionState) SetConnected(id string, connected bool) {
	if p := s.Player(id); p != nil {
		p.Connected = connected
	}
}

func (s *SessionState) ConnectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (s *SessionState) IsOwner(id string) bool {
	p := s.Player(id)
	return p != nil && p.UserId == s.ownerUserId
}

// HandOverOwnership gives the room to the longest-standing connected player
// when the owner is no longer on the roster.
func (s *SessionState) HandOverOwnership() (*Player, bool) {
	if s.PlayerByUser(s.ownerUserId) != nil {
		return nil, false
	}
	for _, p := range s.players {
		if p.Connected {
			s.ownerUserId = p.UserId
			return p, true
		}
	}
	return nil, false
}

// Phases.

// BeginSession loads the rounds of a freshly created played game and moves to
// the pre-round countdown. Cumulative scores and restart votes start over.
func (s *SessionState) BeginSession(playedGameId, catalogReference string, rounds []*Round, counter int) error {
	if err := s.transition(PhaseCountdown); err != nil {
		return err
	}
	s.playedGameId = playedGameId
	s.catalogReference = catalogReference
	s.rounds = rounds
	s.totalRounds = len(rounds)
	s.round = 0
	s.cycle = 0
	s.counter = counter
	s.active = nil
	s.winner = nil
	s.playStatus = StatusPlaying
	s.sessions++
	clear(s.votes)
	for _, e := range s.scores {
		e.Round = 0
		e.Cumulative = 0
	}
	return nil
}

// NextCountdown leaves a finished round for the countdown of the next one.
func (s *SessionState) NextCountdown(counter int) error {
	if s.round >= s.totalRounds {
		return fmt.Errorf("%w: no rounds left", ErrIllegalTransition)
	}
	if err := s.transition(PhaseCountdown); err != nil {
		return err
	}
	s.counter = counter
	s.cycle = 0
	s.active = nil
	s.winner = nil
	return nil
}

func (s *SessionState) StartRound() error {
	if s.round >= s.totalRounds {
		return fmt.Errorf("%w: no rounds left", ErrIllegalTransition)
	}
	if err := s.transition(PhaseRoundActive); err != nil {
		return err
	}
	s.active = s.rounds[s.round].Fresh()
	s.round++
	s.cycle = 1
	s.counter = 0
	s.winner = nil
	for _, e := range s.scores {
		e.Round = 0
	}
	return nil
}

// AdvanceCycle reveals the next cue. It returns false once the last cycle
// has run out.
func (s *SessionState) AdvanceCycle() bool {
	if s.phase != PhaseRoundActive || s.cycle >= MaxCycle {
		return false
	}
	s.cycle++
	s.active.RevealFor(s.cycle)
	return true
}

// AcceptGuess awards the round to the first exact match. Any other guess,
// including every guess after the round has been won, is rejected.
func (s *SessionState) AcceptGuess(playerId, text string, scores ScoreTable) (*Winner, bool) {
	if s.phase != PhaseRoundActive || s.playStatus != StatusPlaying || s.winner != nil {
		return nil, false
	}
	p := s.Player(playerId)
	if p == nil || !s.active.Matches(text) {
		return nil, false
	}

	points := scores.ScoreFor(s.cycle)
	e := s.scores[playerId]
	e.Round += points
	e.Cumulative += points
	e.Session += points

	s.winner = &Winner{PlayerId: p.Id, DisplayName: p.DisplayName, Points: points}
	s.phase = PhaseRoundEnd
	return s.winner, true
}

// EndRound closes a round nobody guessed.
func (s *SessionState) EndRound() error {
	return s.transition(PhaseRoundEnd)
}

func (s *SessionState) SetCounter(counter int) {
	s.counter = counter
}

func (s *SessionState) DecrementCounter() int {
	if s.counter > 0 {
		s.counter--
	}
	return s.counter
}

func (s *SessionState) HasRemainingRounds() bool {
	return s.round < s.totalRounds
}

func (s *SessionState) EndGame() error {
	if err := s.transition(PhaseGameEnd); err != nil {
		return err
	}
	s.active = nil
	s.winner = nil
	s.cycle = 0
	s.counter = 0
	clear(s.votes)
	return nil
}

func (s *SessionState) SetPaused(paused bool) {
	if paused {
		s.playStatus = StatusPaused
	} else {
		s.playStatus = StatusPlaying
	}
}

// Restart votes.

func (s *SessionState) CastVote(playerId string, vote bool) bool {
	if s.phase != PhaseGameEnd || s.Player(playerId) == nil {
		return false
	}
	s.votes[playerId] = vote
	return true
}

func (s *SessionState) Vote(playerId string) (vote, voted bool) {
	vote, voted = s.votes[playerId]
	return vote, voted
}

// Supporters lists the players who voted for a restart, in roster order.
func (s *SessionState) Supporters() []string {
	var ids []string
	for _, p := range s.players {
		if s.votes[p.Id] {
			ids = append(ids, p.Id)
		}
	}
	return ids
}

func (s *SessionState) ClearVotes() {
	clear(s.votes)
}

func (s *SessionState) VoteTally() (votesFor, votesCast int) {
	for _, v := range s.votes {
		votesCast++
		if v {
			votesFor++
		}
	}
	return votesFor, votesCast
}

func (s *SessionState) RestartAgreed(policy RestartPolicy) bool {
	votesFor, _ := s.VoteTally()
	switch policy {
	case RestartOnAnyVote:
		return votesFor > 0
	case RestartOnUnanimousVote:
		connected := 0
		for _, p := range s.players {
			if !p.Connected {
				continue
			}
			connected++
			if !s.votes[p.Id] {
				return false
			}
		}
		return connected > 0
	}
	return false
}
