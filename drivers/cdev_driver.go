//go:build linux

package drivers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const cdevDriverName = "cdev"
const defaultCdevChip = "gpiochip0"
const cdevConsumer = "pinbox"

// CdevIO drives lines through the GPIO character device. Edge events are
// delivered by the kernel, with debounce applied in the kernel.
type CdevIO struct {
	Chip          string
	InvertInputs  bool
	InvertOutputs bool

	BounceTime time.Duration `json:"-" yaml:"-"`

	chip    *gpiocdev.Chip
	inputs  []*CdevInput
	outputs []*CdevOutput
	isReady bool
	lock    sync.Mutex
}

type CdevInput struct {
	offset int
	opts   []gpiocdev.LineReqOption
	driver *CdevIO

	lock sync.Mutex
	line *gpiocdev.Line
}

type CdevOutput struct {
	offset int
	line   *gpiocdev.Line
}

func (ci *CdevInput) current() *gpiocdev.Line {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	return ci.line
}

func (ci *CdevInput) GetState() (bool, error) {
	v, err := ci.current().Value()
	if err != nil {
		return false, errors.Wrapf(err, "cdev read line %d", ci.offset)
	}
	return v == 1, nil
}

// Watch re-requests the line with edge detection, since the event handler
// can only be attached when a line is requested.
func (ci *CdevInput) Watch(edge Edge, listener EdgeListener) error {
	if edge == EdgeNone {
		return nil
	}
	if listener == nil {
		return errors.New("nil edge listener")
	}

	ci.lock.Lock()
	defer ci.lock.Unlock()

	opts := append([]gpiocdev.LineReqOption{}, ci.opts...)
	switch edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	default:
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	opts = append(opts,
		gpiocdev.WithDebounce(bounceOrDefault(ci.driver.BounceTime)),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			listener.PinChanged(uint16(evt.Offset))
		}),
	)

	if err := ci.line.Close(); err != nil {
		return errors.Wrapf(err, "cdev release line %d", ci.offset)
	}
	line, err := ci.driver.chip.RequestLine(ci.offset, opts...)
	if err != nil {
		return errors.Wrapf(err, "cdev request line %d with edge detection", ci.offset)
	}
	ci.line = line
	return nil
}

func (co *CdevOutput) GetState() (bool, error) {
	v, err := co.line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "cdev read line %d", co.offset)
	}
	return v == 1, nil
}

func (co *CdevOutput) Set(state bool) error {
	v := 0
	if state {
		v = 1
	}
	return co.line.SetValue(v)
}

func (cd *CdevIO) Setup(ctx context.Context) (err error) {
	name := cd.Chip
	if len(name) == 0 {
		name = defaultCdevChip
	}

	cd.chip, err = gpiocdev.NewChip(name, gpiocdev.WithConsumer(cdevConsumer))
	if err != nil {
		return errors.Wrapf(err, "failed to open gpio chip %s", name)
	}

	cd.isReady = true
	return nil
}

func (cd *CdevIO) AddInput(pin uint16, pull Pull) (DigitalInput, error) {
	if !cd.isReady {
		return nil, errors.New("cdev driver not ready")
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if cd.InvertInputs {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := cd.chip.RequestLine(int(pin), opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "cdev request input line %d", pin)
	}

	input := &CdevInput{offset: int(pin), opts: opts, driver: cd, line: line}
	cd.lock.Lock()
	cd.inputs = append(cd.inputs, input)
	cd.lock.Unlock()
	return input, nil
}

func (cd *CdevIO) AddOutput(pin uint16) (DigitalOutput, error) {
	if !cd.isReady {
		return nil, errors.New("cdev driver not ready")
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if cd.InvertOutputs {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := cd.chip.RequestLine(int(pin), opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "cdev request output line %d", pin)
	}

	output := &CdevOutput{offset: int(pin), line: line}
	cd.lock.Lock()
	cd.outputs = append(cd.outputs, output)
	cd.lock.Unlock()
	return output, nil
}

func (cd *CdevIO) String() string {
	return cdevDriverName
}

func (cd *CdevIO) IsReady() bool {
	return cd.isReady
}

func (cd *CdevIO) Close() error {
	if !cd.isReady {
		return nil
	}
	cd.isReady = false

	cd.lock.Lock()
	defer cd.lock.Unlock()
	for _, in := range cd.inputs {
		in.current().Close()
	}
	for _, out := range cd.outputs {
		out.Set(false)
		out.line.Close()
	}
	return cd.chip.Close()
}

func (cd *CdevIO) GetInput(pin uint16) (DigitalInput, error) {
	cd.lock.Lock()
	defer cd.lock.Unlock()
	for _, in := range cd.inputs {
		if in.offset == int(pin) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("cdev input %d not found", pin)
}

func (cd *CdevIO) GetOutput(pin uint16) (DigitalOutput, error) {
	cd.lock.Lock()
	defer cd.lock.Unlock()
	for _, out := range cd.outputs {
		if out.offset == int(pin) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("cdev output %d not found", pin)
}

func (cd *CdevIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	cd.lock.Lock()
	defer cd.lock.Unlock()
	for _, in := range cd.inputs {
		inputs = append(inputs, uint16(in.offset))
	}
	for _, out := range cd.outputs {
		outputs = append(outputs, uint16(out.offset))
	}
	return
}
