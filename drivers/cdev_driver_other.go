//go:build !linux

package drivers

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const cdevDriverName = "cdev"

var errCdevUnsupported = errors.New("gpio character device is only available on linux")

// CdevIO is unavailable off linux; Setup always fails.
type CdevIO struct {
	Chip          string
	InvertInputs  bool
	InvertOutputs bool

	BounceTime time.Duration `json:"-" yaml:"-"`
}

func (cd *CdevIO) Setup(ctx context.Context) error { return errCdevUnsupported }
func (cd *CdevIO) Close() error                    { return nil }
func (cd *CdevIO) String() string                  { return cdevDriverName }
func (cd *CdevIO) IsReady() bool                   { return false }

func (cd *CdevIO) AddInput(pin uint16, pull Pull) (DigitalInput, error) {
	return nil, errCdevUnsupported
}

func (cd *CdevIO) AddOutput(pin uint16) (DigitalOutput, error) {
	return nil, errCdevUnsupported
}

func (cd *CdevIO) GetInput(pin uint16) (DigitalInput, error) {
	return nil, errCdevUnsupported
}

func (cd *CdevIO) GetOutput(pin uint16) (DigitalOutput, error) {
	return nil, errCdevUnsupported
}

func (cd *CdevIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	return
}
