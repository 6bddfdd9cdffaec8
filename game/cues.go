package game

import (
	"fmt"
	"strings"

	"cueword/domain"
)

const (
	MaxCycle = 4
	// PreRevealedCues are visible from the first cycle of every round.
	PreRevealedCues = 2
)

type CueFragment struct {
	Order    int
	Text     string
	Revealed bool
}

// Round is one word of a played game: the key to guess and the cues that
// lead to it.
type Round struct {
	WordId string
	Key    string
	Cues   [domain.CueCount]CueFragment
}

// RevealedCount is how many cues are visible during the given cycle.
func RevealedCount(cycle int) int {
	if cycle < 1 {
		return 0
	}
	n := PreRevealedCues + cycle - 1
	if n > domain.CueCount {
		return domain.CueCount
	}
	return n
}

// RevealTable lists, for every cycle, which cue positions are visible.
func RevealTable() [MaxCycle][domain.CueCount]bool {
	var table [MaxCycle][domain.CueCount]bool
	for c := 1; c <= MaxCycle; c++ {
		for i := 0; i < RevealedCount(c); i++ {
			table[c-1][i] = true
		}
	}
	return table
}

func NewRound(cr domain.CatalogRound) (*Round, error) {
	if strings.TrimSpace(cr.Key) == "" {
		return nil, fmt.Errorf("%w: word %s has no key", domain.ErrMalformedRound, cr.WordId)
	}

	r := &Round{WordId: cr.WordId, Key: cr.Key}
	for i, text := range cr.Cues {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: word %s is missing cue %d", domain.ErrMalformedRound, cr.WordId, i+1)
		}
		r.Cues[i] = CueFragment{Order: i + 1, Text: text}
	}
	r.RevealFor(1)
	return r, nil
}

func NewRounds(crs []domain.CatalogRound) ([]*Round, error) {
	if len(crs) == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	rounds := make([]*Round, 0, len(crs))
	for _, cr := range crs {
		r, err := NewRound(cr)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, nil
}

// RevealFor marks the cues visible in the given cycle. Already revealed cues
// stay revealed.
func (r *Round) RevealFor(cycle int) {
	for i := 0; i < RevealedCount(cycle); i++ {
		r.Cues[i].Revealed = true
	}
}

func (r *Round) Fresh() *Round {
	c := *r
	for i := range c.Cues {
		c.Cues[i].Revealed = false
	}
	c.RevealFor(1)
	return &c
}

func (r *Round) Matches(guess string) bool {
	return normalizeGuess(guess) == normalizeGuess(r.Key)
}

func normalizeGuess(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
