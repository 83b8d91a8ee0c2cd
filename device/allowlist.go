package device

import (
  "net"
  "strings"
)

// AllowList filters devices by address. An empty list allows every device.
type AllowList struct {
  names map[string]string
}

func NewAllowList(scales []*Scale) AllowList {
  l := AllowList{names: make(map[string]string, len(scales))}

  for _, s := range scales {
    l.names[key(s.Addr())] = s.Name()
  }

  return l
}

func key(addr net.HardwareAddr) string {
  return strings.ToLower(addr.String())
}

func (l AllowList) Empty() bool {
  return len(l.names) == 0
}

func (l AllowList) Allows(addr net.HardwareAddr) bool {
  if l.Empty() {
    return true
  }

  _, ok := l.names[key(addr)]

  return ok
}

// Name returns the configured name for addr, or the address itself.
func (l AllowList) Name(addr net.HardwareAddr) string {
  if name, ok := l.names[key(addr)]; ok {
    return name
  }

  return addr.String()
}
