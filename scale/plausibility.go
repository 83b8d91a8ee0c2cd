package scale

import "time"

const DefaultTolerance = 10 * time.Minute

// Clock returns the current wall-clock time.
type Clock func() time.Time

// Gate rejects readings whose embedded timestamp is too far from now, which happens with stale
// cached advertisements and with a skewed scale clock.
type Gate struct {
  Tolerance time.Duration
  Now Clock
}

func NewGate() Gate {
  return Gate{Tolerance: DefaultTolerance, Now: time.Now}
}

// Plausible reports whether now-tolerance <= claimed <= now+tolerance.
func Plausible(claimed, now time.Time, tolerance time.Duration) bool {
  return !claimed.Before(now.Add(-tolerance)) && !claimed.After(now.Add(tolerance))
}

func (g Gate) Accept(claimed time.Time) bool {
  now := g.Now
  if now == nil {
    now = time.Now
  }

  return Plausible(claimed.UTC(), now().UTC(), g.Tolerance)
}
