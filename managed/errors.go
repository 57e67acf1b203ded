package managed

import (
	"context"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("managed: pool is closed")

type TimeoutType int

const (
	TimeoutWait TimeoutType = iota
	TimeoutCreate
	TimeoutRecycle
)

func (t TimeoutType) String() string {
	switch t {
	case TimeoutWait:
		return "wait"
	case TimeoutCreate:
		return "create"
	case TimeoutRecycle:
		return "recycle"
	default:
		return fmt.Sprintf("TimeoutType(%d)", int(t))
	}
}

// TimeoutError is returned when a phase of Pool.Get exceeds its configured
// timeout while the caller's context is still live.
type TimeoutError struct {
	Type TimeoutType
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("managed: timed out during %s", e.Type)
}

func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }
