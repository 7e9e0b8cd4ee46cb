// Package repository persists finished tournament results.
package repository

import (
	"context"
	"time"

	"github.com/okian/promptelo/internal/domain/model"
)

// Summary is a listing row for a stored result.
type Summary struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	BestID      string            `json:"best_id"`
	BestRating  float64           `json:"best_rating"`
	Candidates  int               `json:"candidates"`
	Matches     int               `json:"matches"`
	Termination model.Termination `json:"termination"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Summarize builds the listing row for res.
func Summarize(res *model.Result) Summary {
	s := Summary{
		ID:          res.ID,
		Description: res.Task.Description,
		Candidates:  len(res.Standings),
		Matches:     len(res.Matches),
		Termination: res.Termination,
		FinishedAt:  res.FinishedAt,
	}
	if best, ok := res.Best(); ok {
		s.BestID = best.ID
		s.BestRating = best.Rating
	}
	return s
}

// Store provides read/write access to tournament results.
type Store interface {
	// Save stores res under res.ID, replacing any previous result with that id.
	Save(ctx context.Context, res *model.Result) error

	// Get returns the result for id.
	// Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (*model.Result, error)

	// List returns up to limit summaries, most recently finished first.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Count returns the number of stored results.
	Count(ctx context.Context) int
}
