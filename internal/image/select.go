package imagepkg

import (
	"image"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// Candidate is one resolution variant of a user-supplied source image.
// Ref is resolved by a Fetcher.
type Candidate struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ref    string `json:"ref"`
}

// Outcome tells how a candidate was chosen.
type Outcome int

const (
	// OutcomeMatch: the candidate covers the required size.
	OutcomeMatch Outcome = iota
	// OutcomeFallback: nothing covered the required size; the last
	// candidate was taken as the best available.
	OutcomeFallback
)

func (o Outcome) String() string {
	if o == OutcomeFallback {
		return "fallback"
	}
	return "match"
}

// Selection is the result of Select.
type Selection struct {
	Candidate
	Index   int
	Outcome Outcome
}

// Select returns the first candidate, in the given order, whose width and
// height both reach required. When none does, the last candidate is
// returned with OutcomeFallback; callers order candidates from smallest to
// largest so that this is the largest one. An empty list is a NO_CANDIDATE
// error.
func Select(candidates []Candidate, required image.Point) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, apperr.New(apperr.ErrCodeNoCandidate, "no source image candidates")
	}
	for i, c := range candidates {
		if c.Width >= required.X && c.Height >= required.Y {
			return Selection{Candidate: c, Index: i, Outcome: OutcomeMatch}, nil
		}
	}
	last := len(candidates) - 1
	return Selection{Candidate: candidates[last], Index: last, Outcome: OutcomeFallback}, nil
}
