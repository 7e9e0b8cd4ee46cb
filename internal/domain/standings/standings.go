// Package standings holds the candidate set of one tournament and their ratings.
package standings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/okian/promptelo/internal/domain/model"
)

// DefaultRating is the rating every candidate starts with.
const DefaultRating = 1200.0

// Errors returned by Store.
var (
	ErrAlreadyRegistered = errors.New("standings: candidates already registered")
	ErrDuplicateID       = errors.New("standings: duplicate candidate id")
	ErrEmptyID           = errors.New("standings: empty candidate id")
	ErrUnknownCandidate  = errors.New("standings: unknown candidate")
)

// Entry is a candidate to register.
type Entry struct {
	ID      string
	Content string
}

// EntriesFromTexts assigns ids P1..Pn in order.
func EntriesFromTexts(texts []string) []Entry {
	out := make([]Entry, len(texts))
	for i, t := range texts {
		out[i] = Entry{ID: "P" + strconv.Itoa(i+1), Content: t}
	}
	return out
}

type slot struct {
	candidate model.Candidate
	seq       int
}

// Store owns the candidate set for a tournament's lifetime. The set is fixed
// once registered; only ratings change.
type Store struct {
	mu            sync.RWMutex
	slots         []slot
	index         map[string]int
	defaultRating float64
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultRating sets the starting rating.
func WithDefaultRating(r float64) Option {
	return func(s *Store) {
		s.defaultRating = r
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		index:         make(map[string]int),
		defaultRating: DefaultRating,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register initializes every entry at the default rating. It may be called once.
func (s *Store) Register(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) > 0 {
		return ErrAlreadyRegistered
	}
	index := make(map[string]int, len(entries))
	slots := make([]slot, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w at position %d", ErrEmptyID, i)
		}
		if _, dup := index[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		index[e.ID] = i
		slots = append(slots, slot{
			candidate: model.Candidate{ID: e.ID, Content: e.Content, Rating: s.defaultRating},
			seq:       i,
		})
	}
	s.slots = slots
	s.index = index
	return nil
}

// CurrentOrder returns a snapshot sorted by rating descending; ties keep
// registration order.
func (s *Store) CurrentOrder() []model.Candidate {
	s.mu.RLock()
	ordered := make([]slot, len(s.slots))
	copy(ordered, s.slots)
	s.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].candidate.Rating != ordered[j].candidate.Rating {
			return ordered[i].candidate.Rating > ordered[j].candidate.Rating
		}
		return ordered[i].seq < ordered[j].seq
	})

	out := make([]model.Candidate, len(ordered))
	for i, sl := range ordered {
		out[i] = sl.candidate
	}
	return out
}

// Apply sets the rating of one candidate.
func (s *Store) Apply(id string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCandidate, id)
	}
	s.slots[i].candidate.Rating = rating
	return nil
}

// Get returns one candidate by id.
func (s *Store) Get(id string) (model.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Candidate{}, false
	}
	return s.slots[i].candidate, true
}

// Len returns the number of registered candidates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
