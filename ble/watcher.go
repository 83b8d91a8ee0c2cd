package ble

import (
  "context"
  "fmt"
  "net"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-bluescale/device"
  "github.com/robertof/go-bluescale/utils"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

const (
  DefaultExpiry = 60 * time.Second
  eventBufferSize = 64
)

var ErrUnknownDevice = errors.New("device not seen by the scanner")

var (
  advertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "bluescale_ble_advertisements_total",
    Help: "Advertisements received by the HCI scanner.",
  })
  devicesAddedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "bluescale_ble_devices_added_total",
  })
  devicesRemovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "bluescale_ble_devices_removed_total",
  })
  droppedEventsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "bluescale_ble_dropped_events_total",
    Help: "Device events dropped because the consumer was busy.",
  })
)

// Bluetooth base UUID, used to expand 16 and 32-bit service identifiers.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ToUUID converts a go-ble UUID (stored little endian, 2, 4 or 16 bytes long) to its full
// 128-bit form.
func ToUUID(u UUID) (uuid.UUID, error) {
  b := utils.Reverse(u)
  out := baseUUID

  switch len(b) {
  case 2:
    copy(out[2:4], b)
  case 4:
    copy(out[0:4], b)
  case 16:
    copy(out[:], b)
  default:
    return uuid.Nil, fmt.Errorf("unsupported UUID length %d", len(b))
  }

  return out, nil
}

type ScanFunc func(ctx context.Context, onAdvertisement func(Advertisement)) error

type seenDevice struct {
  addr net.HardwareAddr
  lastSeen time.Time
  data device.ServiceData
}

// Watcher turns a continuous scan into device events. A device is added on its first
// advertisement and removed once it has been silent for longer than Expiry. The latest service
// data of every present device is kept around for ServiceData.
type Watcher struct {
  Expiry time.Duration

  scan ScanFunc
  now func() time.Time

  mu sync.Mutex
  seen map[string]*seenDevice
  events chan device.Event
}

func NewWatcher(scan ScanFunc) *Watcher {
  return &Watcher{
    Expiry: DefaultExpiry,
    scan: scan,
    now: time.Now,
    seen: make(map[string]*seenDevice),
  }
}

func (w *Watcher) Discover(ctx context.Context) (<-chan device.Event, error) {
  w.mu.Lock()
  defer w.mu.Unlock()

  if w.events != nil {
    return nil, errors.New("discovery already running")
  }

  w.events = make(chan device.Event, eventBufferSize)

  go w.run(ctx)

  return w.events, nil
}

func (w *Watcher) run(ctx context.Context) {
  expiry := w.expiry()

  eg, ctx := errgroup.WithContext(ctx)

  eg.Go(func() error {
    return w.scan(ctx, w.HandleAdvertisement)
  })

  eg.Go(func() error {
    ticker := time.NewTicker(expiry / 2)
    defer ticker.Stop()

    for {
      select {
      case <-ctx.Done():
        return nil
      case <-ticker.C:
        w.Sweep()
      }
    }
  })

  err := eg.Wait()

  if err != nil && !utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
    log.Error().Err(err).Msg("ble: scan stopped unexpectedly")
  } else {
    log.Debug().Msg("ble: scan stopped")
  }

  // the library may still deliver advertisements after the scan returns: closing under the
  // lock with events set to nil makes later emits a no-op.
  w.mu.Lock()
  close(w.events)
  w.events = nil
  w.mu.Unlock()
}

// HandleAdvertisement records an advertisement, emitting an Added event for new devices.
func (w *Watcher) HandleAdvertisement(a Advertisement) {
  advertisementsCounter.Inc()

  addr, err := net.ParseMAC(a.Addr().String())
  if err != nil {
    log.Trace().Err(err).Str("Addr", a.Addr().String()).Msg("ble: ignoring advertisement")
    return
  }

  data := make(device.ServiceData)

  for _, sd := range a.ServiceData() {
    id, err := ToUUID(sd.UUID)

    if err != nil {
      log.Trace().Err(err).Stringer("Addr", addr).Msg("ble: skipping service data")
      continue
    }

    data[id] = append([]byte(nil), sd.Data...)
  }

  log.Trace().
    Stringer("Addr", addr).
    Str("LocalName", a.LocalName()).
    Int("RSSI", a.RSSI()).
    Int("ServiceData", len(data)).
    Msg("ble: received advertisement")

  w.mu.Lock()
  defer w.mu.Unlock()

  k := strings.ToLower(addr.String())
  dev, ok := w.seen[k]

  if !ok {
    // a device is only recorded once its Added event is queued, so a dropped event is retried on
    // the next advertisement.
    if !w.emitLocked(device.Event{Type: device.EventAdded, Addr: addr}) {
      return
    }

    dev = &seenDevice{addr: addr, data: make(device.ServiceData)}
    w.seen[k] = dev

    devicesAddedCounter.Inc()
  }

  dev.lastSeen = w.now()

  // scan responses usually carry no service data; keep what the last advertisement had.
  for id, block := range data {
    dev.data[id] = block
  }
}

// Sweep removes every device that has been silent for longer than Expiry.
func (w *Watcher) Sweep() {
  w.mu.Lock()
  defer w.mu.Unlock()

  now := w.now()
  expiry := w.expiry()

  for k, dev := range w.seen {
    if now.Sub(dev.lastSeen) <= expiry {
      continue
    }

    delete(w.seen, k)

    devicesRemovedCounter.Inc()
    w.emitLocked(device.Event{Type: device.EventRemoved, Addr: dev.addr})
  }
}

func (w *Watcher) expiry() time.Duration {
  if w.Expiry <= 0 {
    return DefaultExpiry
  }

  return w.Expiry
}

// emitLocked reports whether ev was queued. Without a running discovery there is nobody to tell
// and the event counts as delivered.
func (w *Watcher) emitLocked(ev device.Event) bool {
  if w.events == nil {
    return true
  }

  select {
  case w.events <- ev:
    return true
  default:
    droppedEventsCounter.Inc()
    log.Warn().Stringer("Event", ev).Msg("ble: event buffer full, dropping event")
    return false
  }
}

// ServiceData returns the latest service data advertised by addr.
func (w *Watcher) ServiceData(_ context.Context, addr net.HardwareAddr) (device.ServiceData, error) {
  w.mu.Lock()
  defer w.mu.Unlock()

  dev, ok := w.seen[strings.ToLower(addr.String())]
  if !ok {
    return nil, errors.Wrapf(ErrUnknownDevice, "addr %v", addr)
  }

  out := make(device.ServiceData, len(dev.data))

  for id, block := range dev.data {
    out[id] = append([]byte(nil), block...)
  }

  return out, nil
}
