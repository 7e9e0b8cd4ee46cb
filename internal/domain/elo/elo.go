// Package elo implements the logistic Elo rating update.
package elo

import "math"

// DefaultK is the K-factor used when none is configured.
const DefaultK = 24.0

// scale is the rating difference at which the stronger side is expected
// to score ten times as often.
const scale = 400.0

// ExpectedScore returns the expected score of a player rated ra against rb.
func ExpectedScore(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/scale))
}

// Update returns the post-match ratings of A and B. scoreA is 1 for a win by A,
// 0 for a loss and 0.5 for a draw. Both expectations are taken from the
// pre-match ratings and each side's delta is computed from its own expectation,
// so the sum of ratings is conserved only up to floating rounding.
func Update(ra, rb, scoreA, k float64) (float64, float64) {
	ea := ExpectedScore(ra, rb)
	eb := 1.0 - ea
	return ra + k*(scoreA-ea), rb + k*((1.0-scoreA)-eb)
}
