package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const mockDriverName = "mock_driver"

type MockOutput struct {
	lock             sync.Mutex
	state            bool
	pin              uint16
	writeTo          io.Writer
	writeStateChange bool
	history          []MockLevel
}

// MockLevel is one level written to a mock output.
type MockLevel struct {
	State bool
	At    time.Time
}

func (mo *MockOutput) GetState() (bool, error) {
	mo.lock.Lock()
	defer mo.lock.Unlock()
	return mo.state, nil
}

func (mo *MockOutput) Set(state bool) error {
	mo.lock.Lock()
	defer mo.lock.Unlock()
	if mo.writeStateChange && state != mo.state {
		fmt.Fprintf(mo.writeTo, "[pin %d] state changed to %v\n", mo.pin, state)
	}
	mo.state = state
	mo.history = append(mo.history, MockLevel{State: state, At: time.Now()})
	return nil
}

// History returns every level written with Set, oldest first.
func (mo *MockOutput) History() []MockLevel {
	mo.lock.Lock()
	defer mo.lock.Unlock()
	return append([]MockLevel(nil), mo.history...)
}

type MockInput struct {
	lock     sync.Mutex
	State    bool
	pin      uint16
	pull     Pull
	edge     Edge
	listener EdgeListener
	reads    int
}

func (mi *MockInput) GetState() (bool, error) {
	mi.lock.Lock()
	defer mi.lock.Unlock()
	mi.reads++
	return mi.State, nil
}

func (mi *MockInput) Watch(edge Edge, listener EdgeListener) error {
	mi.lock.Lock()
	defer mi.lock.Unlock()
	mi.edge = edge
	mi.listener = listener
	return nil
}

// SetLevel changes the simulated line level. A change matching the watched
// edge calls the listener on the caller's goroutine.
func (mi *MockInput) SetLevel(level bool) {
	mi.lock.Lock()
	changed := level != mi.State
	mi.State = level
	listener := mi.listener
	fire := changed && listener != nil && mi.edge.matches(level)
	mi.lock.Unlock()

	if fire {
		listener.PinChanged(mi.pin)
	}
}

// Bounce reports an edge without changing the level, as contact noise does.
func (mi *MockInput) Bounce() {
	mi.lock.Lock()
	listener := mi.listener
	mi.lock.Unlock()

	if listener != nil {
		listener.PinChanged(mi.pin)
	}
}

func (mi *MockInput) Watched() Edge {
	mi.lock.Lock()
	defer mi.lock.Unlock()
	return mi.edge
}

func (mi *MockInput) Pull() Pull {
	mi.lock.Lock()
	defer mi.lock.Unlock()
	return mi.pull
}

func (mi *MockInput) Reads() int {
	mi.lock.Lock()
	defer mi.lock.Unlock()
	return mi.reads
}

type MockIoDriver struct {
	lock    sync.Mutex
	inputs  []*MockInput
	outputs []*MockOutput
	ready   bool
}

func (md *MockIoDriver) Setup(ctx context.Context) error {
	md.lock.Lock()
	defer md.lock.Unlock()
	md.ready = true
	return nil
}

func (md *MockIoDriver) AddInput(pin uint16, pull Pull) (DigitalInput, error) {
	md.lock.Lock()
	defer md.lock.Unlock()
	if !md.ready {
		return nil, fmt.Errorf("mock driver not ready")
	}
	for _, input := range md.inputs {
		if input.pin == pin {
			input.pull = pull
			return input, nil
		}
	}
	input := &MockInput{pin: pin, pull: pull, State: pull == PullUp}
	md.inputs = append(md.inputs, input)
	return input, nil
}

func (md *MockIoDriver) AddOutput(pin uint16) (DigitalOutput, error) {
	md.lock.Lock()
	defer md.lock.Unlock()
	if !md.ready {
		return nil, fmt.Errorf("mock driver not ready")
	}
	for _, output := range md.outputs {
		if output.pin == pin {
			return output, nil
		}
	}
	output := &MockOutput{pin: pin}
	md.outputs = append(md.outputs, output)
	return output, nil
}

func (md *MockIoDriver) Close() error {
	md.lock.Lock()
	defer md.lock.Unlock()
	md.ready = false
	return nil
}

func (md *MockIoDriver) String() string {
	return mockDriverName
}

func (md *MockIoDriver) IsReady() bool {
	md.lock.Lock()
	defer md.lock.Unlock()
	return md.ready
}

func (md *MockIoDriver) GetInput(pin uint16) (DigitalInput, error) {
	return md.MockInput(pin)
}

func (md *MockIoDriver) GetOutput(pin uint16) (DigitalOutput, error) {
	return md.MockOutput(pin)
}

// MockInput is GetInput returning the concrete type, for tests.
func (md *MockIoDriver) MockInput(pin uint16) (*MockInput, error) {
	md.lock.Lock()
	defer md.lock.Unlock()
	for _, input := range md.inputs {
		if pin == input.pin {
			return input, nil
		}
	}
	return nil, fmt.Errorf("mock input %d not found", pin)
}

func (md *MockIoDriver) MockOutput(pin uint16) (*MockOutput, error) {
	md.lock.Lock()
	defer md.lock.Unlock()
	for _, output := range md.outputs {
		if pin == output.pin {
			return output, nil
		}
	}
	return nil, fmt.Errorf("mock output %d not found", pin)
}

func (md *MockIoDriver) GetAllIo() (inputs []uint16, outputs []uint16) {
	md.lock.Lock()
	defer md.lock.Unlock()
	for _, input := range md.inputs {
		inputs = append(inputs, input.pin)
	}
	for _, output := range md.outputs {
		outputs = append(outputs, output.pin)
	}
	return
}

func (md *MockIoDriver) MonitorStateChanges(writer io.Writer) {
	md.lock.Lock()
	defer md.lock.Unlock()
	for _, out := range md.outputs {
		out.lock.Lock()
		out.writeTo = writer
		out.writeStateChange = true
		out.lock.Unlock()
	}
}

// Inputs returns all mock inputs, in creation order.
func (md *MockIoDriver) Inputs() []*MockInput {
	md.lock.Lock()
	defer md.lock.Unlock()
	return append([]*MockInput(nil), md.inputs...)
}
