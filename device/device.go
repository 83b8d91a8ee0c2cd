package device

import (
  "context"
  "fmt"
  "net"
  "strings"

  "github.com/google/uuid"
)

type EventType uint8

const (
  EventAdded EventType = iota
  EventRemoved
)

func (t EventType) String() string {
  if t == EventAdded {
    return "Added"
  }

  return "Removed"
}

// Event is emitted by a Transport when a device appears or disappears.
type Event struct {
  Type EventType
  Addr net.HardwareAddr
}

func (e Event) String() string {
  return fmt.Sprintf("%v(%v)", e.Type, e.Addr)
}

// ServiceData maps a service identifier to the data block advertised for it.
type ServiceData map[uuid.UUID][]byte

// Transport is a source of device events plus a way to read the latest advertised service data
// of a device.
type Transport interface {
  // Discover streams device events until ctx is done, then closes the channel.
  Discover(ctx context.Context) (<-chan Event, error)
  ServiceData(ctx context.Context, addr net.HardwareAddr) (ServiceData, error)
}

// Scale is a configured scale.
type Scale struct {
  name string
  addr net.HardwareAddr
}

func FromDeviceSpec(spec DeviceSpec) (*Scale, error) {
  s := Scale{}

  addr := spec.Addr()

  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  if name := spec.Name(); name != "" {
    s.name = name
  } else {
    s.name = "scale-" + strings.ToLower(strings.ReplaceAll(addr, ":", ""))
  }

  s.addr = hwAddr

  return &s, nil
}

func (s *Scale) Name() string {
  return s.name
}

func (s *Scale) Addr() net.HardwareAddr {
  return s.addr
}

func (s *Scale) String() string {
  return fmt.Sprintf("scale[name=%q, addr=%v]", s.name, s.addr.String())
}
