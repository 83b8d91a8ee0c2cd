package ble

import (
  "bytes"
  "context"
  "net"
  "reflect"
  "testing"
  "time"

  ble_mod "github.com/go-ble/ble"
  "github.com/google/uuid"
  "github.com/robertof/go-bluescale/device"
)

var bodyComposition = uuid.MustParse("0000181b-0000-1000-8000-00805f9b34fb")

func TestToUUID(t *testing.T) {
  tests := []struct {
    in UUID
    want uuid.UUID
  }{
    {ble_mod.UUID16(0x181b), bodyComposition},
    {ble_mod.UUID{0x1b, 0x18, 0x00, 0x00}, bodyComposition},
    {ble_mod.MustParse("0000181b-0000-1000-8000-00805f9b34fb"), bodyComposition},
    {ble_mod.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
      uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")},
  }

  for _, tt := range tests {
    got, err := ToUUID(tt.in)

    if err != nil {
      t.Fatalf("ToUUID(%v) got error: %v", tt.in, err)
    }

    if got != tt.want {
      t.Errorf("ToUUID(%v): got %v, wanted %v", tt.in, got, tt.want)
    }
  }

  if _, err := ToUUID(ble_mod.UUID{0x01, 0x02, 0x03}); err == nil {
    t.Fatalf("ToUUID() should reject 3-byte UUIDs")
  }
}

type fakeClock struct {
  now time.Time
}

func (c *fakeClock) Now() time.Time {
  return c.now
}

func newTestWatcher() (*Watcher, *fakeClock, chan device.Event) {
  clock := &fakeClock{now: time.Date(2024, time.March, 9, 7, 45, 0, 0, time.UTC)}

  w := NewWatcher(nil)
  w.now = clock.Now
  w.events = make(chan device.Event, eventBufferSize)

  return w, clock, w.events
}

func drain(ch chan device.Event) (out []device.Event) {
  for {
    select {
    case ev := <-ch:
      out = append(out, ev)
    default:
      return out
    }
  }
}

func TestWatcher_AddsAndExpires(t *testing.T) {
  w, clock, events := newTestWatcher()
  addr, _ := net.ParseMAC("5c:ca:d3:00:11:22")
  payload := []byte{0x02, 0x26, 0xe6, 0x07}

  w.HandleAdvertisement(FakeAdvertisement{
    addr: ble_mod.NewAddr("5c:ca:d3:00:11:22"),
    serviceData: []ble_mod.ServiceData{{UUID: ble_mod.UUID16(0x181b), Data: payload}},
  })

  // a scan response without service data must not erase the block.
  clock.now = clock.now.Add(30 * time.Second)
  w.HandleAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr("5c:ca:d3:00:11:22")})

  if got, want := drain(events), []device.Event{{Type: device.EventAdded, Addr: addr}}; !reflect.DeepEqual(got, want) {
    t.Fatalf("got events %v, wanted %v", got, want)
  }

  sd, err := w.ServiceData(context.Background(), addr)
  if err != nil {
    t.Fatalf("ServiceData() got error: %v", err)
  }

  if !bytes.Equal(sd[bodyComposition], payload) {
    t.Fatalf("ServiceData(): got %x, wanted %x", sd[bodyComposition], payload)
  }

  clock.now = clock.now.Add(DefaultExpiry)
  w.Sweep()

  if got := drain(events); len(got) != 0 {
    t.Fatalf("device expired too early: %v", got)
  }

  clock.now = clock.now.Add(time.Second)
  w.Sweep()

  if got, want := drain(events), []device.Event{{Type: device.EventRemoved, Addr: addr}}; !reflect.DeepEqual(got, want) {
    t.Fatalf("got events %v, wanted %v", got, want)
  }

  if _, err := w.ServiceData(context.Background(), addr); err == nil {
    t.Fatalf("ServiceData() should fail for a removed device")
  }
}

func TestWatcher_DropsWhenFull(t *testing.T) {
  w, _, events := newTestWatcher()

  for i := 0; i < eventBufferSize + 5; i += 1 {
    mac := net.HardwareAddr{0x5c, 0xca, 0xd3, 0x00, 0x00, byte(i)}
    w.HandleAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr(mac.String())})
  }

  if got := len(drain(events)); got != eventBufferSize {
    t.Fatalf("got %d events, wanted %d", got, eventBufferSize)
  }
}

func TestWatcher_DroppedDeviceAddedOnceDrained(t *testing.T) {
  w, clock, events := newTestWatcher()

  for i := 0; i < eventBufferSize; i += 1 {
    mac := net.HardwareAddr{0x01, 0x02, 0x03, 0x00, 0x00, byte(i)}
    w.HandleAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr(mac.String())})
  }

  scaleAddr, _ := net.ParseMAC("5c:ca:d3:00:11:22")
  payload := []byte{0x02, 0x26, 0xe6, 0x07}
  adv := FakeAdvertisement{
    addr: ble_mod.NewAddr(scaleAddr.String()),
    serviceData: []ble_mod.ServiceData{{UUID: ble_mod.UUID16(0x181b), Data: payload}},
  }

  // buffer full: the scale's Added is dropped.
  w.HandleAdvertisement(adv)

  if _, err := w.ServiceData(context.Background(), scaleAddr); err == nil {
    t.Fatalf("ServiceData() should fail for a device whose Added event was dropped")
  }

  if got := len(drain(events)); got != eventBufferSize {
    t.Fatalf("got %d events, wanted %d", got, eventBufferSize)
  }

  for i := 0; i < 5; i += 1 {
    clock.now = clock.now.Add(5 * time.Second)
    w.HandleAdvertisement(adv)
  }

  want := []device.Event{{Type: device.EventAdded, Addr: scaleAddr}}

  if got := drain(events); !reflect.DeepEqual(got, want) {
    t.Fatalf("got events %v, wanted %v", got, want)
  }

  sd, err := w.ServiceData(context.Background(), scaleAddr)
  if err != nil || !bytes.Equal(sd[bodyComposition], payload) {
    t.Fatalf("ServiceData(): got (%x, %v), wanted %x", sd[bodyComposition], err, payload)
  }
}

func TestWatcher_NonPositiveExpiry(t *testing.T) {
  w, clock, events := newTestWatcher()
  w.Expiry = 0

  w.HandleAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr("5c:ca:d3:00:11:22")})
  drain(events)

  clock.now = clock.now.Add(time.Second)
  w.Sweep()

  if got := drain(events); len(got) != 0 {
    t.Fatalf("device removed one second after its last advertisement: %v", got)
  }

  clock.now = clock.now.Add(DefaultExpiry)
  w.Sweep()

  if got := drain(events); len(got) != 1 || got[0].Type != device.EventRemoved {
    t.Fatalf("got events %v, wanted a single removal", got)
  }
}

func TestWatcher_Discover(t *testing.T) {
  addr := "5c:ca:d3:00:11:22"

  w := NewWatcher(func(ctx context.Context, onAdvertisement func(Advertisement)) error {
    onAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr(addr)})
    <-ctx.Done()
    // late advertisement, after the caller stopped listening.
    onAdvertisement(FakeAdvertisement{addr: ble_mod.NewAddr("01:02:03:04:05:06")})
    return ctx.Err()
  })

  ctx, cancel := context.WithCancel(context.Background())
  events, err := w.Discover(ctx)

  if err != nil {
    t.Fatalf("Discover() got error: %v", err)
  }

  select {
  case ev := <-events:
    if ev.Type != device.EventAdded || ev.Addr.String() != addr {
      t.Fatalf("got event %v", ev)
    }
  case <-time.After(time.Second):
    t.Fatal("no event received")
  }

  cancel()

  for range events {
  }
}

type FakeAdvertisement struct {
  name string
  serviceData []ble_mod.ServiceData
  addr ble_mod.Addr
}

func (f FakeAdvertisement) LocalName() string {
  return f.name
}

func (f FakeAdvertisement) ManufacturerData() []byte {
  return nil
}

func (f FakeAdvertisement) ServiceData() []ble_mod.ServiceData {
  return f.serviceData
}

func (f FakeAdvertisement) Services() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) OverflowService() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) TxPowerLevel() int {
  return 0
}

func (f FakeAdvertisement) Connectable() bool {
  return false
}

func (f FakeAdvertisement) SolicitedService() []ble_mod.UUID {
  return nil
}

func (f FakeAdvertisement) RSSI() int {
  return 0
}

func (f FakeAdvertisement) Addr() ble_mod.Addr {
  return f.addr
}

func TestFlags_String(t *testing.T) {
  tests := map[Flags]string{
    0: "none",
    FlagScanTypeActive: "active scan",
    FlagScanTypeActive | FlagEnableDeviceAllowList: "active scan, device allow-list",
  }

  for f, want := range tests {
    if got := f.String(); got != want {
      t.Errorf("Flags(%d).String(): got %q, wanted %q", int(f), got, want)
    }
  }
}
