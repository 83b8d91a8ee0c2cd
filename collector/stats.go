package collector

import (
  "sync"
  "time"

  "github.com/robertof/go-bluescale/collector/model"
  "github.com/robertof/go-bluescale/scale"
)

// Stats is a snapshot of what the prober has done since startup.
type Stats struct {
  Attempts uint64
  // Failed attempts, by kind.
  Failures map[scale.Kind]uint64
  Outcomes map[model.Status]uint64
  LastSuccess time.Time
}

type statsRecorder struct {
  mu sync.Mutex
  s Stats
}

func newStatsRecorder() *statsRecorder {
  return &statsRecorder{
    s: Stats{
      Failures: make(map[scale.Kind]uint64),
      Outcomes: make(map[model.Status]uint64),
    },
  }
}

func (r *statsRecorder) attempt(err error) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.s.Attempts += 1

  if err != nil {
    r.s.Failures[scale.KindOf(err)] += 1
  }
}

func (r *statsRecorder) outcome(o model.Outcome, at time.Time) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.s.Outcomes[o.Status] += 1

  if o.Success() {
    r.s.LastSuccess = at
  }
}

func (r *statsRecorder) snapshot() Stats {
  r.mu.Lock()
  defer r.mu.Unlock()

  out := Stats{
    Attempts: r.s.Attempts,
    Failures: make(map[scale.Kind]uint64, len(r.s.Failures)),
    Outcomes: make(map[model.Status]uint64, len(r.s.Outcomes)),
    LastSuccess: r.s.LastSuccess,
  }

  for k, v := range r.s.Failures {
    out.Failures[k] = v
  }

  for k, v := range r.s.Outcomes {
    out.Outcomes[k] = v
  }

  return out
}
