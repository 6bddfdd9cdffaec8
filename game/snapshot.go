package game

import (
	"time"

	"cueword/wire"
)

// Snapshot renders what every client is allowed to see. Hidden cues carry no
// text and the key stays secret until the round is over.
func (s *SessionState) Snapshot(roomId string, seq uint64, remaining time.Duration) *wire.Snapshot {
	snap := &wire.Snapshot{
		RoomId:      roomId,
		Seq:         seq,
		Phase:       int32(s.phase),
		PlayStatus:  int32(s.playStatus),
		Round:       int32(s.round),
		TotalRounds: int32(s.totalRounds),
		Cycle:       int32(s.cycle),
		Counter:     int32(s.counter),
		RemainingMs: remaining.Milliseconds(),
	}
	if !s.scheduledStart.IsZero() {
		snap.ScheduledStartMs = s.scheduledStart.UnixMilli()
	}

	if s.active != nil {
		roundOver := s.phase == PhaseRoundEnd
		if roundOver {
			snap.Key = s.active.Key
		}
		for _, c := range s.active.Cues {
			f := wire.CueFragment{Order: int32(c.Order), Revealed: c.Revealed}
			if c.Revealed || roundOver {
				f.Text = c.Text
			}
			snap.Cues = append(snap.Cues, f)
		}
	}

	if s.winner != nil {
		snap.Winner = &wire.Winner{
			PlayerId:    s.winner.PlayerId,
			DisplayName: s.winner.DisplayName,
			Points:      int32(s.winner.Points),
		}
	}

	for _, p := range s.players {
		score := s.Score(p.Id)
		vote, voted := s.Vote(p.Id)
		snap.Players = append(snap.Players, wire.PlayerState{
			Id:              p.Id,
			DisplayName:     p.DisplayName,
			Connected:       p.Connected,
			Owner:           p.UserId == s.ownerUserId,
			RoundScore:      int32(score.Round),
			CumulativeScore: int32(score.Cumulative),
			SessionScore:    int32(score.Session),
			Voted:           voted,
			Vote:            vote,
		})
	}

	votesFor, votesCast := s.VoteTally()
	snap.VotesFor = int32(votesFor)
	snap.VotesCast = int32(votesCast)
	return snap
}
