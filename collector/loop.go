package collector

import (
  "context"
  "net"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-bluescale/collector/model"
  "github.com/robertof/go-bluescale/device"
  "github.com/robertof/go-bluescale/notify"
  "github.com/rs/zerolog/log"
)

const DefaultQuietPeriod = 10 * time.Second

type Discoverer interface {
  Discover(ctx context.Context) (<-chan device.Event, error)
}

type DeviceProber interface {
  Probe(ctx context.Context, addr net.HardwareAddr) model.Outcome
}

// Loop handles device events one at a time. While a device is being probed, later events wait
// in the transport's buffer, so at most one probe runs at any time.
type Loop struct {
  // Wait between noticing a device and querying it, so it can finish its weighing cycle.
  QuietPeriod time.Duration
  Sleep SleepFunc

  transport Discoverer
  allowList device.AllowList
  prober DeviceProber
  notifier notify.Notifier
}

// NewLoop builds a loop. notifier must not block; wrap slow notifiers with notify.NewAsync.
func NewLoop(
  t Discoverer,
  allowList device.AllowList,
  prober DeviceProber,
  notifier notify.Notifier,
) *Loop {
  return &Loop{
    QuietPeriod: DefaultQuietPeriod,
    Sleep: Sleep,
    transport: t,
    allowList: allowList,
    prober: prober,
    notifier: notifier,
  }
}

// Run consumes device events until ctx is done or the transport closes its stream.
func (l *Loop) Run(ctx context.Context) error {
  events, err := l.transport.Discover(ctx)

  if err != nil {
    return errors.Wrap(err, "failed to start device discovery")
  }

  log.Info().Dur("QuietPeriodSec", l.QuietPeriod).Msg("Waiting for scale devices")

  for {
    select {
    case <-ctx.Done():
      return nil
    case ev, ok := <-events:
      if !ok {
        log.Info().Msg("Device event stream closed")
        return nil
      }

      l.handle(ctx, ev)
    }
  }
}

func (l *Loop) handle(ctx context.Context, ev device.Event) {
  if !l.allowList.Allows(ev.Addr) {
    log.Trace().Stringer("Event", ev).Msg("Ignoring event from device not in allow-list")
    return
  }

  name := l.allowList.Name(ev.Addr)

  switch ev.Type {
  case device.EventRemoved:
    log.Info().Stringer("Addr", ev.Addr).Str("Name", name).Msg("Device removed")
  case device.EventAdded:
    log.Info().Stringer("Addr", ev.Addr).Str("Name", name).Msg("Device added")

    l.notifier.Notify(notify.EventNoticed)

    log.Info().
      Stringer("Addr", ev.Addr).
      Dur("QuietPeriodSec", l.QuietPeriod).
      Msg("Sleeping and waiting for data")

    if err := l.Sleep(ctx, l.QuietPeriod); err != nil {
      return
    }

    outcome := l.prober.Probe(ctx, ev.Addr)

    if outcome.Success() {
      log.Info().
        Stringer("Addr", ev.Addr).
        Str("Name", name).
        Int("Attempts", outcome.Attempts).
        Msg("Measurement stored")

      l.notifier.Notify(notify.EventSuccess)
    } else {
      log.Debug().
        Stringer("Addr", ev.Addr).
        Stringer("Outcome", outcome).
        Msg("Probe finished without a stored measurement")
    }
  }
}
