package wire

import "google.golang.org/protobuf/reflect/protoreflect"

func int32Value(v int32) protoreflect.Value {
	return protoreflect.ValueOfInt32(v)
}

func writeSnapshot(m protoreflect.Message, s *Snapshot) {
	if s == nil {
		return
	}
	set(m, "room_id", protoreflect.ValueOfString(s.RoomId))
	set(m, "seq", protoreflect.ValueOfUint64(s.Seq))
	set(m, "phase", int32Value(s.Phase))
	set(m, "play_status", int32Value(s.PlayStatus))
	set(m, "round", int32Value(s.Round))
	set(m, "total_rounds", int32Value(s.TotalRounds))
	set(m, "cycle", int32Value(s.Cycle))
	set(m, "counter", int32Value(s.Counter))
	set(m, "remaining_ms", protoreflect.ValueOfInt64(s.RemainingMs))
	set(m, "key", protoreflect.ValueOfString(s.Key))

	cues := m.Mutable(field(m, "cues")).List()
	for _, c := range s.Cues {
		v := cues.NewElement()
		cm := v.Message()
		set(cm, "order", int32Value(c.Order))
		set(cm, "text", protoreflect.ValueOfString(c.Text))
		set(cm, "revealed", protoreflect.ValueOfBool(c.Revealed))
		cues.Append(v)
	}

	if s.Winner != nil {
		wm := setMessage(m, "winner")
		set(wm, "player_id", protoreflect.ValueOfString(s.Winner.PlayerId))
		set(wm, "display_name", protoreflect.ValueOfString(s.Winner.DisplayName))
		set(wm, "points", int32Value(s.Winner.Points))
	}

	players := m.Mutable(field(m, "players")).List()
	for _, p := range s.Players {
		v := players.NewElement()
		pm := v.Message()
		set(pm, "id", protoreflect.ValueOfString(p.Id))
		set(pm, "display_name", protoreflect.ValueOfString(p.DisplayName))
		set(pm, "connected", protoreflect.ValueOfBool(p.Connected))
		set(pm, "owner", protoreflect.ValueOfBool(p.Owner))
		set(pm, "round_score", int32Value(p.RoundScore))
		set(pm, "cumulative_score", int32Value(p.CumulativeScore))
		set(pm, "session_score", int32Value(p.SessionScore))
		set(pm, "voted", protoreflect.ValueOfBool(p.Voted))
		set(pm, "vote", protoreflect.ValueOfBool(p.Vote))
		players.Append(v)
	}

	set(m, "votes_for", int32Value(s.VotesFor))
	set(m, "votes_cast", int32Value(s.VotesCast))
	set(m, "scheduled_start_ms", protoreflect.ValueOfInt64(s.ScheduledStartMs))
}

func readSnapshot(m protoreflect.Message) *Snapshot {
	s := &Snapshot{
		RoomId:           get(m, "room_id").String(),
		Seq:              get(m, "seq").Uint(),
		Phase:            int32(get(m, "phase").Int()),
		PlayStatus:       int32(get(m, "play_status").Int()),
		Round:            int32(get(m, "round").Int()),
		TotalRounds:      int32(get(m, "total_rounds").Int()),
		Cycle:            int32(get(m, "cycle").Int()),
		Counter:          int32(get(m, "counter").Int()),
		RemainingMs:      get(m, "remaining_ms").Int(),
		Key:              get(m, "key").String(),
		VotesFor:         int32(get(m, "votes_for").Int()),
		VotesCast:        int32(get(m, "votes_cast").Int()),
		ScheduledStartMs: get(m, "scheduled_start_ms").Int(),
	}

	cues := get(m, "cues").List()
	for i := range cues.Len() {
		cm := cues.Get(i).Message()
		s.Cues = append(s.Cues, CueFragment{
			Order:    int32(get(cm, "order").Int()),
			Text:     get(cm, "text").String(),
			Revealed: get(cm, "revealed").Bool(),
		})
	}

	if m.Has(field(m, "winner")) {
		wm := get(m, "winner").Message()
		s.Winner = &Winner{
			PlayerId:    get(wm, "player_id").String(),
			DisplayName: get(wm, "display_name").String(),
			Points:      int32(get(wm, "points").Int()),
		}
	}

	players := get(m, "players").List()
	for i := range players.Len() {
		pm := players.Get(i).Message()
		s.Players = append(s.Players, PlayerState{
			Id:              get(pm, "id").String(),
			DisplayName:     get(pm, "display_name").String(),
			Connected:       get(pm, "connected").Bool(),
			Owner:           get(pm, "owner").Bool(),
			RoundScore:      int32(get(pm, "round_score").Int()),
			CumulativeScore: int32(get(pm, "cumulative_score").Int()),
			SessionScore:    int32(get(pm, "session_score").Int()),
			Voted:           get(pm, "voted").Bool(),
			Vote:            get(pm, "vote").Bool(),
		})
	}
	return s
}
