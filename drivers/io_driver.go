package drivers

import (
	"context"
	"strings"
	"time"
)

const DefaultBounceTime = 10 * time.Millisecond

type IoDriver interface {
	Setup(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool
	AddInput(pin uint16, pull Pull) (DigitalInput, error)
	AddOutput(pin uint16) (DigitalOutput, error)
	GetInput(pin uint16) (DigitalInput, error)
	GetOutput(pin uint16) (DigitalOutput, error)
	GetAllIo() (inputs []uint16, outputs []uint16)
}

func MapAllIoDrivers() map[string]IoDriver {
	drivers := []IoDriver{
		&GpIO{},
		&CdevIO{},
		&PeriphIO{},
		&MockIoDriver{},
	}

	mapped := make(map[string]IoDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

type DigitalInput interface {
	GetState() (bool, error)
	Watch(edge Edge, listener EdgeListener) error
}

type DigitalOutput interface {
	GetState() (bool, error)
	Set(bool) error
}

type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// matches reports whether a transition to level is covered by e.
func (e Edge) matches(level bool) bool {
	switch e {
	case EdgeBoth:
		return true
	case EdgeRising:
		return level
	case EdgeFalling:
		return !level
	default:
		return false
	}
}

type Pull int

const (
	PullUp Pull = iota
	PullDown
	PullNone
)

func ParsePull(s string) Pull {
	switch strings.ToLower(s) {
	case "down":
		return PullDown
	case "none", "off":
		return PullNone
	default:
		return PullUp
	}
}

func (p Pull) String() string {
	switch p {
	case PullDown:
		return "down"
	case PullNone:
		return "none"
	default:
		return "up"
	}
}

// EdgeListener receives level changes reported by a driver. PinChanged is
// called from the driver's own goroutine, one per watched line, and may block.
type EdgeListener interface {
	PinChanged(pin uint16)
}

// bounceFilter drops reports that arrive within window of the previous
// accepted report on the same line.
type bounceFilter struct {
	window time.Duration
	last   time.Time
}

func (bf *bounceFilter) accept(now time.Time) bool {
	if !bf.last.IsZero() && now.Sub(bf.last) < bf.window {
		return false
	}
	bf.last = now
	return true
}

func bounceOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultBounceTime
	}
	return d
}
