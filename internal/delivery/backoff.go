package delivery

import "time"

// DefaultBackoffUnit is the retry delay added per failed attempt.
const DefaultBackoffUnit = 5 * time.Minute

// Backoff computes how long a message waits after its n-th failed attempt.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// LinearBackoff waits Unit × attempt.
type LinearBackoff struct {
	Unit time.Duration
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.Unit * time.Duration(attempt)
}
