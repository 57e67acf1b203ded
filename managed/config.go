package managed

import (
	"errors"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrInvalidMaxSize  = errors.New("managed: max size must be positive")
	ErrNegativeTimeout = errors.New("managed: timeouts must not be negative")
)

// Timeouts bounds the phases of Pool.Get. A zero value disables the timeout.
type Timeouts struct {
	Wait    time.Duration // waiting for a free slot
	Create  time.Duration // constructing a new object
	Recycle time.Duration // recycling an idle object
}

type Config struct {
	MaxSize  int
	Timeouts Timeouts

	// Clock stamps every Metrics record of the pool. It defaults to the
	// real-time clock; tests use a mock.
	Clock clock.Clock
}

func NewConfig(maxSize int) Config {
	return Config{MaxSize: maxSize}
}

// DefaultConfig sizes the pool at four objects per CPU.
func DefaultConfig() Config {
	return NewConfig(runtime.NumCPU() * 4)
}

func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return ErrInvalidMaxSize
	}
	if c.Timeouts.Wait < 0 || c.Timeouts.Create < 0 || c.Timeouts.Recycle < 0 {
		return ErrNegativeTimeout
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
