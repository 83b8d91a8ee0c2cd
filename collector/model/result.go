package model

import (
	"fmt"
	"net"
	"strconv"

	"github.com/robertof/go-bluescale/body"
)

type Status uint8

const (
	StatusSuccess Status = iota
	StatusExhausted
	StatusPersistenceFailed
	// the probe was interrupted by process shutdown
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusExhausted:
		return "Exhausted"
	case StatusPersistenceFailed:
		return "PersistenceFailed"
	case StatusAborted:
		return "Aborted"
	default:
		panic("unknown model.Status value: " + strconv.Itoa(int(s)))
	}
}

func AllStatuses() []Status {
	return []Status{StatusSuccess, StatusExhausted, StatusPersistenceFailed, StatusAborted}
}

// Outcome is the result of probing one device.
type Outcome struct {
	Addr     net.HardwareAddr
	Status   Status
	Attempts int

	// Set on success only.
	Measurement *body.Measurement
	// Error of the last attempt, nil on success.
	Error error
}

func (o Outcome) Success() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) String() string {
	if o.Error != nil {
		return fmt.Sprintf("outcome:%v(attempts=%d, error=%v)", o.Status, o.Attempts, o.Error)
	}

	return fmt.Sprintf("outcome:%v(attempts=%d)", o.Status, o.Attempts)
}
