// Package pairing builds conflict-free candidate pairings for tournament rounds.
package pairing

import (
	"math/rand"

	"github.com/okian/promptelo/internal/domain/model"
)

// Pair is one scheduled match. A and B are snapshots taken when the round's
// pairing was built.
type Pair struct {
	A model.Candidate
	B model.Candidate
}

// Key identifies the unordered pair of candidate ids.
func (p Pair) Key() string {
	return pairKey(p.A.ID, p.B.ID)
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Sampler draws seeded random pairings and remembers every unordered pair it
// has produced, so a pair is never scheduled twice within one run. A Sampler
// belongs to a single run and is not safe for concurrent use.
type Sampler struct {
	rng  *rand.Rand
	used map[string]struct{}
}

// NewSampler returns a sampler whose pairing sequence is fully determined by seed.
func NewSampler(seed int64) *Sampler {
	return &Sampler{
		rng:  rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible pairings, not security
		used: make(map[string]struct{}),
	}
}

// Sample shuffles the candidate positions and pairs consecutive couples,
// skipping couples already played in this run. Candidates left over by the
// walk are then matched with any leftover opponent they have not met yet, in
// shuffled order. It stops after want pairs (want <= 0 means as many as
// possible). With an odd count one candidate sits out. The result is empty
// only when every pair in order has been played.
func (s *Sampler) Sample(order []model.Candidate, want int) []Pair {
	positions := make([]int, len(order))
	for i := range positions {
		positions[i] = i
	}
	s.rng.Shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})

	var pairs []Pair
	paired := make([]bool, len(positions))
	full := func() bool { return want > 0 && len(pairs) >= want }
	take := func(i, j int) bool {
		a, b := order[positions[i]], order[positions[j]]
		key := pairKey(a.ID, b.ID)
		if _, seen := s.used[key]; seen {
			return false
		}
		s.used[key] = struct{}{}
		paired[i], paired[j] = true, true
		pairs = append(pairs, Pair{A: a, B: b})
		return true
	}

	for i := 0; i+1 < len(positions) && !full(); i += 2 {
		take(i, i+1)
	}

	// Leftovers: first unplayed opponent wins.
	for i := 0; i < len(positions) && !full(); i++ {
		if paired[i] {
			continue
		}
		for j := i + 1; j < len(positions); j++ {
			if !paired[j] && take(i, j) {
				break
			}
		}
	}
	return pairs
}

// Played returns how many distinct pairs this sampler has produced.
func (s *Sampler) Played() int {
	return len(s.used)
}
