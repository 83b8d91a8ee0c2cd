package scale

import (
  "errors"
  "fmt"
  "strconv"
)

// Kind classifies every failure the scale pipeline can produce.
type Kind uint8

const (
  KindUnknown Kind = iota
  // decode level
  KindTruncated
  KindInvalidCalendar
  // query level, retried
  KindInvalidScaleData
  KindImplausibleTimestamp
  KindNoImpedance
  KindTransportQuery
  // terminal
  KindPersistence
  KindExhausted
)

func (k Kind) String() string {
  switch k {
  case KindUnknown:
    return "Unknown"
  case KindTruncated:
    return "Truncated"
  case KindInvalidCalendar:
    return "InvalidCalendar"
  case KindInvalidScaleData:
    return "InvalidScaleData"
  case KindImplausibleTimestamp:
    return "ImplausibleTimestamp"
  case KindNoImpedance:
    return "NoImpedance"
  case KindTransportQuery:
    return "TransportQueryError"
  case KindPersistence:
    return "PersistenceFailure"
  case KindExhausted:
    return "Exhausted"
  default:
    panic("unknown scale.Kind value: " + strconv.Itoa(int(k)))
  }
}

// Retryable reports whether a probe attempt failing with this kind is followed by another one.
func (k Kind) Retryable() bool {
  switch k {
  case KindInvalidScaleData, KindImplausibleTimestamp, KindNoImpedance, KindTransportQuery:
    return true
  default:
    return false
  }
}

// AllKinds lists every kind, in declaration order.
func AllKinds() []Kind {
  return []Kind{
    KindUnknown,
    KindTruncated,
    KindInvalidCalendar,
    KindInvalidScaleData,
    KindImplausibleTimestamp,
    KindNoImpedance,
    KindTransportQuery,
    KindPersistence,
    KindExhausted,
  }
}

type Error struct {
  Kind Kind
  Err error
}

func NewError(kind Kind, err error) *Error {
  return &Error{Kind: kind, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
  return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
  if e.Err == nil {
    return e.Kind.String()
  }

  return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
  return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
  var e *Error

  if errors.As(err, &e) {
    return e.Kind
  }

  return KindUnknown
}
