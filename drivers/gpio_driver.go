package drivers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const gpioDriverName = "gpio"
const gpioEdgePollInterval = 2 * time.Millisecond

type GpIO struct {
	inputs  []*GpInput
	outputs []*GpOutput

	InvertInputs  bool
	InvertOutputs bool

	BounceTime time.Duration `json:"-" yaml:"-"`

	isReady bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lock    sync.Mutex
}

type GpInput struct {
	pin    uint8
	invert bool
	driver *GpIO
}

type GpOutput struct {
	pin    uint8
	invert bool
}

func (gpi *GpInput) GetState() (state bool, err error) {
	if gpi.invert {
		state = rpio.Pin(gpi.pin).Read() == rpio.Low
	} else {
		state = rpio.Pin(gpi.pin).Read() == rpio.High
	}

	return
}

// Watch enables edge detection in the BCM event registers and polls them.
// The hardware latches events between polls, so short pulses are not lost.
func (gpi *GpInput) Watch(edge Edge, listener EdgeListener) error {
	if edge == EdgeNone {
		return nil
	}
	if listener == nil {
		return errors.New("nil edge listener")
	}

	pin := rpio.Pin(gpi.pin)
	pin.Detect(rpio.AnyEdge)

	gp := gpi.driver
	gp.wg.Add(1)
	go func() {
		defer gp.wg.Done()
		defer pin.Detect(rpio.NoEdge)

		filter := &bounceFilter{window: bounceOrDefault(gp.BounceTime)}
		ticker := time.NewTicker(gpioEdgePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gp.ctx.Done():
				return
			case now := <-ticker.C:
				if !pin.EdgeDetected() || !filter.accept(now) {
					continue
				}
				level, _ := gpi.GetState()
				if edge.matches(level) {
					listener.PinChanged(uint16(gpi.pin))
				}
			}
		}
	}()

	return nil
}

func (gpo *GpOutput) Set(state bool) error {

	if gpo.invert {
		state = !state
	}
	if state {
		rpio.Pin(gpo.pin).High()
	} else {
		rpio.Pin(gpo.pin).Low()
	}

	return nil
}

func (gpo *GpOutput) GetState() (state bool, err error) {
	if gpo.invert {
		state = rpio.Pin(gpo.pin).Read() == rpio.Low
	} else {
		state = rpio.Pin(gpo.pin).Read() == rpio.High
	}

	return
}

func (gp *GpIO) Setup(ctx context.Context) error {
	err := rpio.Open()
	if err != nil {
		return errors.Wrap(err, "failed to Setup gpio driver")
	}

	gp.ctx, gp.cancel = context.WithCancel(ctx)
	gp.isReady = true
	return nil
}

func (gp *GpIO) AddInput(inPin uint16, pull Pull) (DigitalInput, error) {
	if inPin > 255 {
		return nil, errors.Errorf("inpin out of range (gpio takes uint8 pin)")
	}
	if !gp.isReady {
		return nil, errors.New("gpio driver not ready")
	}
	gp.lock.Lock()
	defer gp.lock.Unlock()

	pin := rpio.Pin(inPin)
	pin.Input()
	switch pull {
	case PullUp:
		pin.PullUp()
	case PullDown:
		pin.PullDown()
	default:
		pin.PullOff()
	}

	input := &GpInput{pin: uint8(inPin), invert: gp.InvertInputs, driver: gp}
	gp.inputs = append(gp.inputs, input)
	return input, nil
}

func (gp *GpIO) AddOutput(outPin uint16) (DigitalOutput, error) {
	if outPin > 255 {
		return nil, errors.Errorf("outpin out of range (gpio takes uint8 pin)")
	}
	if !gp.isReady {
		return nil, errors.New("gpio driver not ready")
	}
	gp.lock.Lock()
	defer gp.lock.Unlock()

	pin := rpio.Pin(outPin)
	pin.Output()

	output := &GpOutput{pin: uint8(outPin), invert: gp.InvertOutputs}
	gp.outputs = append(gp.outputs, output)
	return output, nil
}

func (gp *GpIO) String() string {
	return gpioDriverName
}

func (gp *GpIO) IsReady() bool {
	return gp.isReady
}

func (gp *GpIO) Close() error {
	if !gp.isReady {
		return nil
	}
	gp.isReady = false
	gp.cancel()
	gp.wg.Wait()
	for _, output := range gp.outputs {
		output.Set(false)
	}
	return rpio.Close()
}

func (gp *GpIO) GetInput(id uint16) (input DigitalInput, err error) {
	if id > 255 {
		err = errors.Errorf("pin id out of range (gpio takes uint8 pin)")
		return
	}
	gp.lock.Lock()
	defer gp.lock.Unlock()
	for _, in := range gp.inputs {
		if in.pin == uint8(id) {
			input = in
			return
		}
	}

	err = fmt.Errorf("GpIO Input (id: %d) not found", id)
	return
}

func (gp *GpIO) GetOutput(id uint16) (output DigitalOutput, err error) {
	if id > 255 {
		err = errors.Errorf("pin id out of range (gpio takes uint8 pin)")
		return
	}
	gp.lock.Lock()
	defer gp.lock.Unlock()
	for _, out := range gp.outputs {
		if out.pin == uint8(id) {
			output = out
			return
		}
	}

	err = fmt.Errorf("GpIO Output (id: %d) not found", id)
	return
}

func (gp *GpIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	gp.lock.Lock()
	defer gp.lock.Unlock()
	for _, input := range gp.inputs {
		inputs = append(inputs, uint16(input.pin))
	}

	for _, output := range gp.outputs {
		outputs = append(outputs, uint16(output.pin))
	}

	return
}
