package pinbox

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const defaultSettleWindow = 100 * time.Millisecond

// Dispatcher turns input edges into state transitions. All edges, whatever
// line they come from, are handled one at a time.
//
// The first edge on a line after a quiet period may be the start of a burst
// of contact noise, so the line is left to settle for SettleWindow before it
// is sampled. Edges inside the burst sample at once, and every sample that
// matches the stored state is dropped.
type Dispatcher struct {
	SettleWindow time.Duration

	registry *Registry
	actions  *Actions

	lock     sync.Mutex
	closed   bool
	now      func() time.Time
	sleep    func(time.Duration)
	onChange func(PinRecord)
	logger   *log.Logger
}

func NewDispatcher(registry *Registry, actions *Actions) *Dispatcher {
	return &Dispatcher{
		SettleWindow: defaultSettleWindow,
		registry:     registry,
		actions:      actions,
		now:          time.Now,
		sleep:        time.Sleep,
		logger:       log.WithPrefix("dispatcher"),
	}
}

// OnChange registers fn to be called after the actions of every transition.
func (d *Dispatcher) OnChange(fn func(PinRecord)) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.onChange = fn
}

// Close waits for a running dispatch to finish; edges reported afterwards
// are ignored.
func (d *Dispatcher) Close() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closed = true
}

// PinChanged implements drivers.EdgeListener.
func (d *Dispatcher) PinChanged(pinNum uint16) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return
	}

	pin, found := d.registry.Lookup(pinNum)
	if !found {
		return
	}

	pin.lock.Lock()
	quiet := d.now().Sub(pin.lastChange) > d.SettleWindow
	pin.lock.Unlock()

	if quiet {
		d.sleep(d.SettleWindow)
		pin.lock.Lock()
		pin.lastChange = d.now()
		pin.lock.Unlock()
	}

	level, err := pin.input.GetState()
	if err != nil {
		d.logger.Error("failed to read input", "pin_num", pinNum, "err", err)
		return
	}
	newState := stateFromLevel(level)

	pin.lock.Lock()
	oldState := pin.record.State
	if oldState == newState {
		pin.lock.Unlock()
		return
	}
	pin.record.State = newState
	rec := pin.record
	pin.lock.Unlock()

	d.logger.Info("input changed state", "pin", rec.Label(), "pin_num", pinNum, "from", oldState, "to", newState)

	if d.actions != nil {
		d.actions.Fire(rec, newState)
	}
	if d.onChange != nil {
		d.onChange(rec)
	}
}
