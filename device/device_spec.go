package device

import (
  "github.com/robertof/go-bluescale/utils"
)

// DeviceSpec is the `-scale` flag value: `addr=AA:BB:CC:DD:EE:FF,name=bathroom`.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
)

func NewDeviceSpec(s string) DeviceSpec {
  return DeviceSpec(utils.ParseKeyValues(s))
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}
