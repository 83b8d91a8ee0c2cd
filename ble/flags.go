package ble

import (
  "strconv"
  "strings"
)

type Flags int

const (
  // Run active scans, so that peripherals send scan responses too.
  FlagScanTypeActive Flags = 1 << iota
  // Only report allow-listed addresses. Configure them with `SetAllowListedAddresses()`.
  FlagEnableDeviceAllowList
)

var flagNames = []struct {
  flag Flags
  name string
}{
  {FlagScanTypeActive, "active scan"},
  {FlagEnableDeviceAllowList, "device allow-list"},
}

func (f Flags) Has(flag Flags) bool {
  return f & flag == flag
}

func (f Flags) String() string {
  var names []string

  for _, n := range flagNames {
    if f.Has(n.flag) {
      names = append(names, n.name)
    }
  }

  if len(names) == 0 {
    return "none"
  }

  return strings.Join(names, ", ")
}

// HCI LE scan type, see LE Set Scan Parameters.
type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

func (s scanType) String() string {
  switch s {
  case scanTypeActive:
    return "Active"
  case scanTypePassive:
    return "Passive"
  default:
    panic("unknown scanType value: " + strconv.Itoa(int(s)))
  }
}

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (f filterPolicy) String() string {
  switch f {
  case filterPolicyAcceptAll:
    return "Accept All"
  case filterPolicyAllowListedOnly:
    return "Allow-listed Only"
  default:
    panic("unknown filterPolicy value: " + strconv.Itoa(int(f)))
  }
}
