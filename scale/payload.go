package scale

import (
  "encoding/binary"
  "fmt"
  "time"

  "github.com/google/uuid"
  "github.com/pkg/errors"
)

// PayloadLength is the size of the body composition service data block.
const PayloadLength = 13

// ServiceUUID identifies the Body Composition service (0x181b) whose service data carries the
// measurement.
var ServiceUUID = uuid.MustParse("0000181b-0000-1000-8000-00805f9b34fb")

var (
  ErrTruncated = errors.New("payload too short")
  ErrInvalidCalendar = errors.New("invalid date/time in payload")
)

// Control holds the two control bytes at the start of the payload.
type Control [2]byte

const (
  bitImperial = 0 // byte 0
  bitImpedance = 1 // byte 1
  bitStabilized = 5 // byte 1
  bitDateInvalid = 6 // byte 1
  bitWeightRemoved = 7 // byte 1
)

func isBitSet(b byte, bit uint) bool {
  return b & (1 << bit) != 0
}

func (c Control) WeightRemoved() bool {
  return isBitSet(c[1], bitWeightRemoved)
}

func (c Control) DateInvalid() bool {
  return isBitSet(c[1], bitDateInvalid)
}

// CattyUnit reads the very same bit as DateInvalid. The device layout this decoder follows
// declares both meanings on byte 1 bit 6 and it is unknown whether that is a firmware quirk or a
// transcription mistake. Both stay a single read, so a payload in catty units never passes the
// date check.
func (c Control) CattyUnit() bool {
  return isBitSet(c[1], bitDateInvalid)
}

func (c Control) Stabilized() bool {
  return isBitSet(c[1], bitStabilized)
}

func (c Control) ImperialUnit() bool {
  return isBitSet(c[0], bitImperial)
}

func (c Control) ImpedancePresent() bool {
  return isBitSet(c[1], bitImpedance)
}

// Reading is a decoded payload. Flags are not validated here; see Reading.Usable.
type Reading struct {
  Control
  Timestamp time.Time
  RawWeight uint16
  RawImpedance uint16

  // Kilograms.
  Weight float64
  // Ohms, zero when the impedance-present flag is not set.
  Impedance float64
}

// Usable reports whether the reading is stabilized and carries a valid date.
func (r Reading) Usable() bool {
  return r.Stabilized() && !r.DateInvalid()
}

func (r Reading) String() string {
  return fmt.Sprintf(
    "Reading[Time=%v,Weight=%.2fkg,Impedance=%.0f,Stabilized=%v,DateInvalid=%v,Imperial=%v]",
    r.Timestamp.Format(time.RFC3339), r.Weight, r.Impedance, r.Stabilized(), r.DateInvalid(),
    r.ImperialUnit())
}

func weightDivisor(c Control) float64 {
  if c.ImperialUnit() || c.CattyUnit() {
    return 100
  }

  return 200
}

// Decode parses a body composition service data block. Multi-byte fields are stored low byte
// first.
func Decode(data []byte) (r Reading, err error) {
  if len(data) < PayloadLength {
    return r, NewError(KindTruncated,
      errors.Wrapf(ErrTruncated, "got %d bytes, want at least %d", len(data), PayloadLength))
  }

  bo := binary.LittleEndian

  r.Control = Control{data[0], data[1]}

  year := int(bo.Uint16(data[2:]))
  month, day := int(data[4]), int(data[5])
  hours, minute, sec := int(data[6]), int(data[7]), int(data[8])

  ts := time.Date(year, time.Month(month), day, hours, minute, sec, 0, time.UTC)

  // time.Date normalises out-of-range values, so any difference means the fields were invalid.
  if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day ||
     ts.Hour() != hours || ts.Minute() != minute || ts.Second() != sec {
    return r, NewError(KindInvalidCalendar,
      errors.Wrapf(ErrInvalidCalendar, "%04d-%02d-%02d %02d:%02d:%02d",
        year, month, day, hours, minute, sec))
  }

  r.Timestamp = ts
  r.RawImpedance = bo.Uint16(data[9:])
  r.RawWeight = bo.Uint16(data[11:])
  r.Weight = float64(r.RawWeight) / weightDivisor(r.Control)

  if r.ImpedancePresent() {
    r.Impedance = float64(r.RawImpedance)
  }

  return r, nil
}

// Encode is the inverse of Decode for the documented fields.
func Encode(r Reading) []byte {
  bo := binary.LittleEndian
  data := make([]byte, PayloadLength)

  data[0], data[1] = r.Control[0], r.Control[1]
  bo.PutUint16(data[2:], uint16(r.Timestamp.Year()))
  data[4] = byte(r.Timestamp.Month())
  data[5] = byte(r.Timestamp.Day())
  data[6] = byte(r.Timestamp.Hour())
  data[7] = byte(r.Timestamp.Minute())
  data[8] = byte(r.Timestamp.Second())
  bo.PutUint16(data[9:], r.RawImpedance)
  bo.PutUint16(data[11:], r.RawWeight)

  return data
}

// NewControl builds control bytes from individual flags. dateInvalid also marks catty units.
func NewControl(stabilized, dateInvalid, impedance, imperial, weightRemoved bool) (c Control) {
  set := func(b *byte, bit uint, on bool) {
    if on {
      *b |= 1 << bit
    }
  }

  set(&c[0], bitImperial, imperial)
  set(&c[1], bitImpedance, impedance)
  set(&c[1], bitStabilized, stabilized)
  set(&c[1], bitDateInvalid, dateInvalid)
  set(&c[1], bitWeightRemoved, weightRemoved)

  return c
}

// RawWeightFor returns the raw weight field encoding kg under the given control flags.
func RawWeightFor(c Control, kg float64) uint16 {
  return uint16(kg * weightDivisor(c) + 0.5)
}
