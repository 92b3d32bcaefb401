package drivers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const periphDriverName = "periph"
const periphEdgeWaitTimeout = 500 * time.Millisecond

// PeriphIO addresses pins by their BCM names (GPIO17 etc.) through periph.io.
type PeriphIO struct {
	InvertInputs  bool
	InvertOutputs bool

	BounceTime time.Duration `json:"-" yaml:"-"`

	inputs  []*PeriphInput
	outputs []*PeriphOutput
	isReady bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	lock   sync.Mutex
}

type PeriphInput struct {
	num    uint16
	pin    gpio.PinIO
	pull   gpio.Pull
	invert bool
	driver *PeriphIO
}

type PeriphOutput struct {
	num    uint16
	pin    gpio.PinIO
	invert bool
}

func periphPin(num uint16) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", num))
	if p == nil {
		return nil, errors.Errorf("periph pin GPIO%d not found", num)
	}
	return p, nil
}

func (pi *PeriphInput) GetState() (bool, error) {
	return (pi.pin.Read() == gpio.High) != pi.invert, nil
}

func (pi *PeriphInput) Watch(edge Edge, listener EdgeListener) error {
	if edge == EdgeNone {
		return nil
	}
	if listener == nil {
		return errors.New("nil edge listener")
	}

	err := pi.pin.In(pi.pull, gpio.BothEdges)
	if err != nil {
		return errors.Wrapf(err, "periph enable edges on GPIO%d", pi.num)
	}

	pd := pi.driver
	pd.wg.Add(1)
	go func() {
		defer pd.wg.Done()
		filter := &bounceFilter{window: bounceOrDefault(pd.BounceTime)}

		for {
			select {
			case <-pd.ctx.Done():
				return
			default:
			}

			if !pi.pin.WaitForEdge(periphEdgeWaitTimeout) {
				continue
			}
			if !filter.accept(time.Now()) {
				continue
			}
			level, _ := pi.GetState()
			if edge.matches(level) {
				listener.PinChanged(pi.num)
			}
		}
	}()

	return nil
}

func (po *PeriphOutput) GetState() (bool, error) {
	return (po.pin.Read() == gpio.High) != po.invert, nil
}

func (po *PeriphOutput) Set(state bool) error {
	if po.invert {
		state = !state
	}
	return po.pin.Out(gpio.Level(state))
}

func (pd *PeriphIO) Setup(ctx context.Context) error {
	_, err := host.Init()
	if err != nil {
		return errors.Wrap(err, "failed to init periph host")
	}

	pd.ctx, pd.cancel = context.WithCancel(ctx)
	pd.isReady = true
	return nil
}

func (pd *PeriphIO) AddInput(num uint16, pull Pull) (DigitalInput, error) {
	if !pd.isReady {
		return nil, errors.New("periph driver not ready")
	}
	p, err := periphPin(num)
	if err != nil {
		return nil, err
	}

	gpull := gpio.PullUp
	switch pull {
	case PullDown:
		gpull = gpio.PullDown
	case PullNone:
		gpull = gpio.Float
	}

	err = p.In(gpull, gpio.NoEdge)
	if err != nil {
		return nil, errors.Wrapf(err, "periph setup input GPIO%d", num)
	}

	input := &PeriphInput{num: num, pin: p, pull: gpull, invert: pd.InvertInputs, driver: pd}
	pd.lock.Lock()
	pd.inputs = append(pd.inputs, input)
	pd.lock.Unlock()
	return input, nil
}

func (pd *PeriphIO) AddOutput(num uint16) (DigitalOutput, error) {
	if !pd.isReady {
		return nil, errors.New("periph driver not ready")
	}
	p, err := periphPin(num)
	if err != nil {
		return nil, err
	}

	output := &PeriphOutput{num: num, pin: p, invert: pd.InvertOutputs}
	err = output.Set(false)
	if err != nil {
		return nil, errors.Wrapf(err, "periph setup output GPIO%d", num)
	}

	pd.lock.Lock()
	pd.outputs = append(pd.outputs, output)
	pd.lock.Unlock()
	return output, nil
}

func (pd *PeriphIO) String() string {
	return periphDriverName
}

func (pd *PeriphIO) IsReady() bool {
	return pd.isReady
}

func (pd *PeriphIO) Close() (err error) {
	if !pd.isReady {
		return
	}
	pd.isReady = false
	pd.cancel()

	pd.lock.Lock()
	for _, in := range pd.inputs {
		if haltErr := in.pin.Halt(); haltErr != nil {
			err = errors.Wrapf(haltErr, "periph halt GPIO%d", in.num)
		}
	}
	for _, out := range pd.outputs {
		out.Set(false)
	}
	pd.lock.Unlock()

	pd.wg.Wait()
	return
}

func (pd *PeriphIO) GetInput(num uint16) (DigitalInput, error) {
	pd.lock.Lock()
	defer pd.lock.Unlock()
	for _, in := range pd.inputs {
		if in.num == num {
			return in, nil
		}
	}
	return nil, fmt.Errorf("periph input %d not found", num)
}

func (pd *PeriphIO) GetOutput(num uint16) (DigitalOutput, error) {
	pd.lock.Lock()
	defer pd.lock.Unlock()
	for _, out := range pd.outputs {
		if out.num == num {
			return out, nil
		}
	}
	return nil, fmt.Errorf("periph output %d not found", num)
}

func (pd *PeriphIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	pd.lock.Lock()
	defer pd.lock.Unlock()
	for _, in := range pd.inputs {
		inputs = append(inputs, in.num)
	}
	for _, out := range pd.outputs {
		outputs = append(outputs, out.num)
	}
	return
}
