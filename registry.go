package pinbox

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/pinbox/drivers"
)

const defaultPulsePeriod = 150 * time.Millisecond
const defaultGapPeriod = 250 * time.Millisecond

// Registry owns every pin record. Records are indexed by id, by name and,
// for inputs with edge detection, by hardware line number.
type Registry struct {
	PulsePeriod time.Duration
	GapPeriod   time.Duration
	Pull        drivers.Pull
	VideoDir    string

	lock    sync.RWMutex
	counter int
	pins    []*Pin
	byName  map[string]*Pin
	byLine  map[uint16]*Pin

	ioDrivers     map[string]drivers.IoDriver
	defaultDriver string

	listener drivers.EdgeListener
	onChange func(PinRecord)
	sleep    func(time.Duration)
	logger   *log.Logger
}

func NewRegistry(ioDrivers map[string]drivers.IoDriver, defaultDriver string) *Registry {
	return &Registry{
		PulsePeriod:   defaultPulsePeriod,
		GapPeriod:     defaultGapPeriod,
		Pull:          drivers.PullUp,
		byName:        make(map[string]*Pin),
		byLine:        make(map[uint16]*Pin),
		ioDrivers:     ioDrivers,
		defaultDriver: defaultDriver,
		sleep:         time.Sleep,
		logger:        log.WithPrefix("registry"),
	}
}

// SetListener sets where input edges are reported. Must be called before
// the first input is created.
func (r *Registry) SetListener(listener drivers.EdgeListener) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.listener = listener
}

// OnChange registers fn to be called whenever an output changes its
// stored state.
func (r *Registry) OnChange(fn func(PinRecord)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.onChange = fn
}

func (r *Registry) notify(rec PinRecord) {
	r.lock.RLock()
	fn := r.onChange
	r.lock.RUnlock()
	if fn != nil {
		fn(rec)
	}
}

func (r *Registry) Create(rec PinRecord) (PinRecord, error) {
	if err := rec.validate(); err != nil {
		return PinRecord{}, err
	}

	r.lock.Lock()
	pin, err := r.create(rec)
	r.lock.Unlock()
	if err != nil {
		return PinRecord{}, err
	}

	if pin.output != nil {
		state := rec.State
		if len(state) == 0 {
			state = StateOff
		}
		return r.drive(pin, state)
	}
	return pin.Record(), nil
}

// create claims the line and indexes the pin. Caller holds r.lock.
func (r *Registry) create(rec PinRecord) (*Pin, error) {
	driverName := rec.DriverName
	if len(driverName) == 0 {
		driverName = r.defaultDriver
	}
	driver, found := r.ioDrivers[driverName]
	if !found || !driver.IsReady() {
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", driverName)
	}

	if len(rec.Name) > 0 {
		if _, taken := r.byName[rec.Name]; taken {
			return nil, errors.Wrapf(ErrDuplicate, "name %q", rec.Name)
		}
	}

	edge := rec.WatchedEdge()
	if edge != drivers.EdgeNone {
		if _, taken := r.byLine[rec.PinNum]; taken {
			return nil, errors.Wrapf(ErrDuplicate, "input line %d already watched", rec.PinNum)
		}
	}

	pin := &Pin{}

	switch rec.Direction {
	case DirectionIn:
		rec.RisingVideo = r.resolveVideo(rec.RisingVideo)
		rec.FallingVideo = r.resolveVideo(rec.FallingVideo)

		input, err := driver.AddInput(rec.PinNum, r.Pull)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to set up input %d", rec.PinNum)
		}
		level, err := input.GetState()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read input %d", rec.PinNum)
		}
		rec.State = stateFromLevel(level)
		pin.input = input

		if edge != drivers.EdgeNone {
			err = input.Watch(edge, r.listener)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to watch input %d", rec.PinNum)
			}
			r.byLine[rec.PinNum] = pin
		}

	case DirectionOut:
		output, err := driver.AddOutput(rec.PinNum)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to set up output %d", rec.PinNum)
		}
		pin.output = output
		// set once Create drives the line
		rec.State = ""
	}

	r.counter++
	rec.Id = r.counter
	rec.DriverName = driverName
	pin.record = rec

	r.pins = append(r.pins, pin)
	if len(rec.Name) > 0 {
		r.byName[rec.Name] = pin
	}

	r.logger.Debug("pin created", "id", rec.Id, "pin_num", rec.PinNum, "direction", rec.Direction, "edge", edge)
	return pin, nil
}

// resolveVideo falls back to the video directory for paths that don't exist
// as given.
func (r *Registry) resolveVideo(name string) string {
	if len(name) == 0 {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if len(r.VideoDir) > 0 {
		inDir := filepath.Join(r.VideoDir, name)
		if _, err := os.Stat(inDir); err == nil {
			r.logger.Info("video resolved", "video", inDir)
			return inDir
		}
	}
	r.logger.Warn("can't find video", "video", name, "dir", r.VideoDir)
	return name
}

func (r *Registry) List() []PinRecord {
	r.lock.RLock()
	defer r.lock.RUnlock()

	records := make([]PinRecord, 0, len(r.pins))
	for _, pin := range r.pins {
		records = append(records, pin.Record())
	}
	return records
}

func (r *Registry) pin(id int) (*Pin, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if id < 1 || id > len(r.pins) {
		return nil, errors.Wrapf(ErrPinNotFound, "pin %d", id)
	}
	return r.pins[id-1], nil
}

func (r *Registry) pinByName(name string) (*Pin, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	pin, found := r.byName[name]
	if !found {
		return nil, errors.Wrapf(ErrPinNotFound, "pin %s", name)
	}
	return pin, nil
}

func (r *Registry) Get(id int) (PinRecord, error) {
	pin, err := r.pin(id)
	if err != nil {
		return PinRecord{}, err
	}
	return pin.Record(), nil
}

func (r *Registry) GetByName(name string) (PinRecord, error) {
	pin, err := r.pinByName(name)
	if err != nil {
		return PinRecord{}, err
	}
	return pin.Record(), nil
}

// Lookup returns the watched input on a hardware line.
func (r *Registry) Lookup(pinNum uint16) (*Pin, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	pin, found := r.byLine[pinNum]
	return pin, found
}

func (r *Registry) Update(id int, patch *PinPatch) (PinRecord, error) {
	if patch == nil {
		return PinRecord{}, ErrNoPayload
	}
	pin, err := r.pin(id)
	if err != nil {
		return PinRecord{}, err
	}
	return r.update(pin, patch)
}

func (r *Registry) UpdateByName(name string, patch *PinPatch) (PinRecord, error) {
	if patch == nil {
		return PinRecord{}, ErrNoPayload
	}
	pin, err := r.pinByName(name)
	if err != nil {
		return PinRecord{}, err
	}
	return r.update(pin, patch)
}

func (r *Registry) update(pin *Pin, patch *PinPatch) (PinRecord, error) {
	if patch.State != nil && !patch.State.Valid() {
		return PinRecord{}, errors.Wrapf(ErrInvalidState, "%q", *patch.State)
	}
	if patch.CallbackMethod != nil && len(*patch.CallbackMethod) > 0 {
		if _, err := callbackMethod(*patch.CallbackMethod); err != nil {
			return PinRecord{}, err
		}
	}

	watchedPin, _ := r.Lookup(pin.Record().PinNum)
	watched := watchedPin == pin

	err := r.applyPatch(pin, patch)
	if err != nil {
		return PinRecord{}, err
	}

	rec := pin.Record()
	if rec.Direction == DirectionIn {
		// a requested state is ignored; the dispatcher owns the state of
		// watched inputs, the rest are sampled here
		if watched {
			return rec, nil
		}
		level, err := pin.input.GetState()
		if err != nil {
			return rec, errors.Wrapf(err, "failed to read input %d", rec.PinNum)
		}
		pin.lock.Lock()
		pin.record.State = stateFromLevel(level)
		rec = pin.record
		pin.lock.Unlock()
		return rec, nil
	}

	target := rec.State
	if patch.State != nil {
		target = *patch.State
	}
	if len(target) == 0 {
		target = StateOff
	}
	return r.drive(pin, target)
}

// applyPatch stores every patched field but the state, which only changes
// once the line has been driven or sampled.
func (r *Registry) applyPatch(pin *Pin, patch *PinPatch) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	old := pin.Record()
	next := old
	patch.apply(&next)
	next.RisingVideo = r.resolveVideoIfChanged(old.RisingVideo, next.RisingVideo)
	next.FallingVideo = r.resolveVideoIfChanged(old.FallingVideo, next.FallingVideo)

	if next.Name != old.Name && len(next.Name) > 0 {
		if _, taken := r.byName[next.Name]; taken {
			return errors.Wrapf(ErrDuplicate, "name %q", next.Name)
		}
	}

	oldEdge, nextEdge := old.WatchedEdge(), next.WatchedEdge()
	if oldEdge == drivers.EdgeNone && nextEdge != drivers.EdgeNone {
		if _, taken := r.byLine[next.PinNum]; taken {
			return errors.Wrapf(ErrDuplicate, "input line %d already watched", next.PinNum)
		}
		err := pin.input.Watch(nextEdge, r.listener)
		if err != nil {
			return errors.Wrapf(err, "failed to watch input %d", next.PinNum)
		}
		r.byLine[next.PinNum] = pin
	}

	if next.Name != old.Name {
		delete(r.byName, old.Name)
		if len(next.Name) > 0 {
			r.byName[next.Name] = pin
		}
	}

	pin.lock.Lock()
	next.State = pin.record.State
	pin.record = next
	pin.lock.Unlock()
	return nil
}

func (r *Registry) resolveVideoIfChanged(old, next string) string {
	if old == next {
		return next
	}
	return r.resolveVideo(next)
}

// drive sets an output line for state. Pulses hold the pin's operation lock
// for the pulse and the following gap, so repeated pulses on one pin queue
// up behind each other.
func (r *Registry) drive(pin *Pin, state State) (PinRecord, error) {
	pin.opLock.Lock()
	defer pin.opLock.Unlock()

	var err error
	final := state
	switch state {
	case StateOn:
		err = pin.output.Set(true)
	case StateOff:
		err = pin.output.Set(false)
	case StatePulse, StatePulse01:
		first := state == StatePulse
		err = pin.output.Set(first)
		if err == nil {
			r.sleep(r.PulsePeriod)
			err = pin.output.Set(!first)
		}
		final = stateFromLevel(!first)
	default:
		return pin.Record(), errors.Wrapf(ErrInvalidState, "%q", state)
	}

	pulse := state == StatePulse || state == StatePulse01

	pin.lock.Lock()
	changed := pulse || pin.lastDriven != final
	if err == nil {
		pin.record.State = final
		pin.lastDriven = final
	}
	rec := pin.record
	pin.lock.Unlock()

	if err != nil {
		return rec, errors.Wrapf(err, "failed to drive output %d", rec.PinNum)
	}

	if changed {
		r.notify(rec)
	}

	if pulse {
		r.sleep(r.GapPeriod)
	}
	return rec, nil
}
