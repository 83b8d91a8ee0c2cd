package collector

import (
  "context"
  "fmt"
  "net"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-bluescale/body"
  "github.com/robertof/go-bluescale/collector/model"
  "github.com/robertof/go-bluescale/device"
  "github.com/robertof/go-bluescale/scale"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

const (
  DefaultMaxAttempts = 10
  DefaultRetryDelay = 1500 * time.Millisecond
)

var ErrNoServiceData = errors.New("no body composition service data")

// Querier reads the service data a device currently advertises.
type Querier interface {
  ServiceData(ctx context.Context, addr net.HardwareAddr) (device.ServiceData, error)
}

// Sink stores a finished measurement.
type Sink interface {
  Insert(ctx context.Context, m body.Measurement, p body.Profile) error
}

// SleepFunc waits for d, returning early with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
  select {
  case <-ctx.Done():
    return ctx.Err()
  case <-time.After(d):
    return nil
  }
}

type ProbeOptions struct {
  MaxAttempts int
  // Fixed delay between two attempts.
  RetryDelay time.Duration
}

// Prober reads, validates and stores a single measurement from a device, retrying a bounded
// number of times.
type Prober struct {
  Gate scale.Gate
  Sleep SleepFunc

  transport Querier
  sink Sink
  profile body.Profile
  opts ProbeOptions
  stats *statsRecorder
}

func NewProber(t Querier, s Sink, p body.Profile, opts ProbeOptions) *Prober {
  if opts.MaxAttempts <= 0 {
    opts.MaxAttempts = DefaultMaxAttempts
  }

  if opts.RetryDelay < 0 {
    opts.RetryDelay = DefaultRetryDelay
  }

  return &Prober{
    Gate: scale.NewGate(),
    Sleep: Sleep,
    transport: t,
    sink: s,
    profile: p,
    opts: opts,
    stats: newStatsRecorder(),
  }
}

func (p *Prober) Stats() Stats {
  return p.stats.snapshot()
}

// Probe runs attempts until a measurement is stored, storing it fails, or the attempts run out.
func (p *Prober) Probe(ctx context.Context, addr net.HardwareAddr) (out model.Outcome) {
  out.Addr = addr

  defer func() {
    p.stats.outcome(out, p.now())
  }()

  for attempt := 1; attempt <= p.opts.MaxAttempts; attempt += 1 {
    out.Attempts = attempt

    m, err := p.attempt(ctx, addr)
    p.stats.attempt(err)

    if err == nil {
      log.Debug().
        Stringer("Addr", addr).
        Stringer("Measurement", m).
        Msg("Computed measurement")

      if err := p.persist(ctx, m); err != nil {
        log.Error().
          Stringer("Addr", addr).
          Err(err).
          Msg("Failed to store measurement")

        out.Status = model.StatusPersistenceFailed
        out.Error = err
        return out
      }

      out.Status = model.StatusSuccess
      out.Measurement = &m
      return out
    }

    out.Error = err

    log.Warn().
      Stringer("Addr", addr).
      Int("Attempt", attempt).
      Int("MaxAttempts", p.opts.MaxAttempts).
      Stringer("Kind", scale.KindOf(err)).
      Err(err).
      Msg("Device query failed")

    if attempt == p.opts.MaxAttempts {
      break
    }

    if err := p.Sleep(ctx, p.opts.RetryDelay); err != nil {
      log.Trace().Err(err).Msg("Retry aborted by context cancel")

      out.Status = model.StatusAborted
      return out
    }
  }

  out.Status = model.StatusExhausted
  out.Error = scale.NewError(scale.KindExhausted,
    errors.Wrapf(out.Error, "giving up after %d attempts", out.Attempts))

  log.Warn().
    Stringer("Addr", addr).
    Int("Attempts", out.Attempts).
    Msg("No valid measurement received from device")

  return out
}

func (p *Prober) now() time.Time {
  if p.Gate.Now != nil {
    return p.Gate.Now()
  }

  return time.Now()
}

// attempt performs one query. Every returned error is a *scale.Error.
func (p *Prober) attempt(ctx context.Context, addr net.HardwareAddr) (m body.Measurement, err error) {
  sd, err := p.transport.ServiceData(ctx, addr)

  if err != nil {
    return m, scale.NewError(scale.KindTransportQuery, err)
  }

  data, ok := sd[scale.ServiceUUID]

  if !ok {
    return m, scale.NewError(scale.KindInvalidScaleData, ErrNoServiceData)
  }

  log.Trace().
    Stringer("Addr", addr).
    Hex("ServiceData", data).
    Msg("Received service data")

  reading, err := scale.Decode(data)

  if err != nil {
    return m, scale.NewError(scale.KindInvalidScaleData, err)
  }

  if !reading.Usable() {
    return m, scale.Errorf(scale.KindInvalidScaleData,
      "reading not usable (stabilized=%v, date invalid=%v)",
      reading.Stabilized(), reading.DateInvalid())
  }

  if !p.Gate.Accept(reading.Timestamp) {
    return m, scale.Errorf(scale.KindImplausibleTimestamp,
      "timestamp %v is more than %v away from now", reading.Timestamp, p.Gate.Tolerance)
  }

  if reading.Impedance == 0 {
    return m, scale.Errorf(scale.KindNoImpedance, "impedance value is zero")
  }

  m, err = body.Compute(p.profile, reading.Timestamp, reading.Weight, reading.Impedance)

  if err != nil {
    return m, scale.NewError(scale.KindInvalidScaleData, err)
  }

  return m, nil
}

// persist hands the measurement to the sink on its own goroutine.
func (p *Prober) persist(ctx context.Context, m body.Measurement) error {
  var eg errgroup.Group

  profile := p.profile

  eg.Go(func() (err error) {
    defer func() {
      if rec := recover(); rec != nil {
        err = fmt.Errorf("panic: %v", rec)
      }
    }()

    log.Info().Stringer("Measurement", m).Msg("Storing measurement")

    return p.sink.Insert(ctx, m, profile)
  })

  if err := eg.Wait(); err != nil {
    return scale.NewError(scale.KindPersistence, err)
  }

  return nil
}
