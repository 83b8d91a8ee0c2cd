// Package bluez implements a device transport on top of the BlueZ D-Bus API.
package bluez

import (
  "context"
  "net"
  "strings"

  "github.com/godbus/dbus/v5"
  "github.com/google/uuid"
  "github.com/pkg/errors"
  "github.com/robertof/go-bluescale/device"
  "github.com/rs/zerolog/log"
)

const (
  busName = "org.bluez"
  adapterInterface = "org.bluez.Adapter1"
  deviceInterface = "org.bluez.Device1"
  objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
  propertiesGet = "org.freedesktop.DBus.Properties.Get"

  signalBufferSize = 64
)

var ErrNoServiceData = errors.New("device has no ServiceData property")

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Transport watches devices known to a BlueZ adapter.
type Transport struct {
  conn *dbus.Conn
  adapter dbus.ObjectPath
}

// Open connects to the system bus and binds to adapter (e.g. `hci0`).
func Open(adapter string) (*Transport, error) {
  conn, err := dbus.ConnectSystemBus()

  if err != nil {
    return nil, errors.Wrap(err, "failed to connect to the system bus")
  }

  t := &Transport{
    conn: conn,
    adapter: dbus.ObjectPath("/org/bluez/" + adapter),
  }

  log.Debug().Str("Adapter", string(t.adapter)).Msg("bluez: connected to the system bus")

  return t, nil
}

func (t *Transport) Close() error {
  return t.conn.Close()
}

func (t *Transport) Discover(ctx context.Context) (<-chan device.Event, error) {
  if err := t.conn.AddMatchSignal(dbus.WithMatchInterface(objectManagerInterface)); err != nil {
    return nil, errors.Wrap(err, "failed to subscribe to object manager signals")
  }

  signals := make(chan *dbus.Signal, signalBufferSize)
  t.conn.Signal(signals)

  adapter := t.conn.Object(busName, t.adapter)

  filter := map[string]interface{}{
    "Transport": "le",
    // service data changes on every weighing, we want every advertisement.
    "DuplicateData": true,
  }

  if err := adapter.CallWithContext(ctx, adapterInterface + ".SetDiscoveryFilter", 0, filter).Err; err != nil {
    log.Warn().Err(err).Msg("bluez: failed to set discovery filter, continuing without")
  }

  if err := adapter.CallWithContext(ctx, adapterInterface + ".StartDiscovery", 0).Err; err != nil {
    t.conn.RemoveSignal(signals)
    return nil, errors.Wrapf(err, "failed to start discovery on %v", t.adapter)
  }

  objects := make(managedObjects)
  root := t.conn.Object(busName, "/")

  if err := root.CallWithContext(ctx, objectManagerInterface + ".GetManagedObjects", 0).Store(&objects); err != nil {
    log.Warn().Err(err).Msg("bluez: failed to list known devices")
  }

  events := make(chan device.Event, signalBufferSize)

  go func() {
    defer close(events)
    defer t.conn.RemoveSignal(signals)
    defer func() {
      if err := adapter.Call(adapterInterface + ".StopDiscovery", 0).Err; err != nil {
        log.Warn().Err(err).Msg("bluez: failed to stop discovery")
      }
    }()

    emit := func(ev device.Event) bool {
      select {
      case events <- ev:
        return true
      case <-ctx.Done():
        return false
      }
    }

    // devices BlueZ already knows about never produce InterfacesAdded.
    for path, ifaces := range objects {
      if ev, ok := t.addedEvent(path, ifaces); ok && !emit(ev) {
        return
      }
    }

    for {
      select {
      case <-ctx.Done():
        return
      case sig, ok := <-signals:
        if !ok {
          return
        }

        if sig == nil {
          continue
        }

        if ev, ok := t.handleSignal(sig); ok && !emit(ev) {
          return
        }
      }
    }
  }()

  return events, nil
}

func (t *Transport) handleSignal(sig *dbus.Signal) (device.Event, bool) {
  if len(sig.Body) < 2 {
    return device.Event{}, false
  }

  path, ok := sig.Body[0].(dbus.ObjectPath)
  if !ok {
    return device.Event{}, false
  }

  switch sig.Name {
  case objectManagerInterface + ".InterfacesAdded":
    ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
    if !ok {
      return device.Event{}, false
    }

    return t.addedEvent(path, ifaces)
  case objectManagerInterface + ".InterfacesRemoved":
    ifaces, ok := sig.Body[1].([]string)
    if !ok || !t.isDevicePath(path) {
      return device.Event{}, false
    }

    for _, iface := range ifaces {
      if iface != deviceInterface {
        continue
      }

      addr, err := ParseDevicePath(path)
      if err != nil {
        log.Debug().Err(err).Msg("bluez: ignoring removed object")
        return device.Event{}, false
      }

      return device.Event{Type: device.EventRemoved, Addr: addr}, true
    }
  }

  return device.Event{}, false
}

func (t *Transport) addedEvent(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (device.Event, bool) {
  props, ok := ifaces[deviceInterface]
  if !ok || !t.isDevicePath(path) {
    return device.Event{}, false
  }

  var addr net.HardwareAddr
  var err error

  if v, ok := props["Address"]; ok {
    if s, ok := v.Value().(string); ok {
      addr, err = net.ParseMAC(s)
    }
  }

  if addr == nil {
    addr, err = ParseDevicePath(path)
  }

  if err != nil {
    log.Debug().Err(err).Str("Path", string(path)).Msg("bluez: ignoring added object")
    return device.Event{}, false
  }

  return device.Event{Type: device.EventAdded, Addr: addr}, true
}

// Device objects live right below the adapter; deeper paths are GATT services and friends.
func (t *Transport) isDevicePath(path dbus.ObjectPath) bool {
  rest, ok := strings.CutPrefix(string(path), string(t.adapter) + "/")

  return ok && strings.HasPrefix(rest, "dev_") && !strings.Contains(rest, "/")
}

func (t *Transport) devicePath(addr net.HardwareAddr) dbus.ObjectPath {
  return dbus.ObjectPath(string(t.adapter) + "/dev_" +
    strings.ToUpper(strings.ReplaceAll(addr.String(), ":", "_")))
}

// ParseDevicePath extracts the address from a device object path such as
// `/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF`.
func ParseDevicePath(path dbus.ObjectPath) (net.HardwareAddr, error) {
  s := string(path)
  elem := s[strings.LastIndex(s, "/") + 1:]

  hex, ok := strings.CutPrefix(elem, "dev_")
  if !ok {
    return nil, errors.Errorf("not a device path: %q", s)
  }

  addr, err := net.ParseMAC(strings.ReplaceAll(hex, "_", ":"))
  if err != nil {
    return nil, errors.Wrapf(err, "invalid device path %q", s)
  }

  return addr, nil
}

func (t *Transport) ServiceData(ctx context.Context, addr net.HardwareAddr) (device.ServiceData, error) {
  obj := t.conn.Object(busName, t.devicePath(addr))

  var v dbus.Variant

  err := obj.CallWithContext(ctx, propertiesGet, 0, deviceInterface, "ServiceData").Store(&v)
  if err != nil {
    return nil, errors.Wrapf(err, "failed to read service data of %v", addr)
  }

  return parseServiceData(v)
}

func parseServiceData(v dbus.Variant) (device.ServiceData, error) {
  raw, ok := v.Value().(map[string]dbus.Variant)
  if !ok {
    return nil, errors.Wrapf(ErrNoServiceData, "unexpected signature %v", v.Signature())
  }

  out := make(device.ServiceData, len(raw))

  for k, block := range raw {
    id, err := uuid.Parse(k)
    if err != nil {
      log.Trace().Err(err).Str("UUID", k).Msg("bluez: skipping service data entry")
      continue
    }

    data, ok := block.Value().([]byte)
    if !ok {
      log.Trace().Str("UUID", k).Str("Signature", block.Signature().String()).
        Msg("bluez: skipping non-byte service data entry")
      continue
    }

    out[id] = data
  }

  return out, nil
}
