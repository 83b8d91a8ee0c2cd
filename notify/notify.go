package notify

import (
  "fmt"
  "strconv"
  "sync"

  "github.com/rs/zerolog/log"
)

type Event uint8

const (
  // A scale showed up and a probe is about to start.
  EventNoticed Event = iota
  // A measurement was stored.
  EventSuccess
)

func (e Event) String() string {
  switch e {
  case EventNoticed:
    return "Noticed"
  case EventSuccess:
    return "Success"
  default:
    panic("unknown notify.Event value: " + strconv.Itoa(int(e)))
  }
}

// Notifier signals an event. Implementations must return immediately.
type Notifier interface {
  Notify(e Event)
}

// Player signals an event synchronously and may take a while doing so.
type Player interface {
  Play(e Event) error
}

// Async turns a Player into a Notifier by playing every event on its own goroutine. Failures
// are logged and otherwise dropped.
type Async struct {
  player Player
  wg sync.WaitGroup
}

func NewAsync(p Player) *Async {
  return &Async{player: p}
}

func (a *Async) Notify(e Event) {
  a.wg.Add(1)

  go func() {
    defer a.wg.Done()
    defer func() {
      if rec := recover(); rec != nil {
        log.Warn().Str("Panic", fmt.Sprint(rec)).Stringer("Event", e).Msg("notify: player panicked")
      }
    }()

    if err := a.player.Play(e); err != nil {
      log.Warn().Err(err).Stringer("Event", e).Msg("notify: failed to play event")
    }
  }()
}

// Wait blocks until every dispatched event has been played.
func (a *Async) Wait() {
  a.wg.Wait()
}

// Log only writes events to the log.
type Log struct{}

func (Log) Play(e Event) error {
  log.Debug().Stringer("Event", e).Msg("notify: event")
  return nil
}
