package pinbox

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/pinbox/drivers"
)

type State string

const (
	StateOn      State = "on"
	StateOff     State = "off"
	StatePulse   State = "pulse"
	StatePulse01 State = "pulse01"
)

func (s State) Valid() bool {
	switch s {
	case StateOn, StateOff, StatePulse, StatePulse01:
		return true
	}
	return false
}

func stateFromLevel(level bool) State {
	if level {
		return StateOn
	}
	return StateOff
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// PinRecord is the REST resource of a single pin.
type PinRecord struct {
	Id             int       `json:"id" yaml:"-"`
	PinNum         uint16    `json:"pin_num" yaml:"pin_num"`
	Direction      Direction `json:"direction" yaml:"direction"`
	State          State     `json:"state,omitempty" yaml:"state,omitempty"`
	Name           string    `json:"name,omitempty" yaml:"name,omitempty"`
	Color          string    `json:"color,omitempty" yaml:"color,omitempty"`
	DriverName     string    `json:"driver,omitempty" yaml:"driver,omitempty"`
	CallbackMethod string    `json:"callback_method,omitempty" yaml:"callback_method,omitempty"`

	RisingUrl     string `json:"rising_url,omitempty" yaml:"rising_url,omitempty"`
	FallingUrl    string `json:"falling_url,omitempty" yaml:"falling_url,omitempty"`
	RisingVideo   string `json:"rising_video,omitempty" yaml:"rising_video,omitempty"`
	FallingVideo  string `json:"falling_video,omitempty" yaml:"falling_video,omitempty"`
	RisingSerial  string `json:"rising_serial,omitempty" yaml:"rising_serial,omitempty"`
	FallingSerial string `json:"falling_serial,omitempty" yaml:"falling_serial,omitempty"`
}

func (pr *PinRecord) validate() error {
	switch pr.Direction {
	case DirectionIn, DirectionOut:
	default:
		return errors.Wrapf(ErrInvalidDirection, "%q", pr.Direction)
	}
	if len(pr.State) > 0 && !pr.State.Valid() {
		return errors.Wrapf(ErrInvalidState, "%q", pr.State)
	}
	if len(pr.CallbackMethod) > 0 {
		if _, err := callbackMethod(pr.CallbackMethod); err != nil {
			return err
		}
	}
	return nil
}

// Actions returns what to do when the line reaches state.
func (pr *PinRecord) Actions(state State) (url, video, serial string) {
	if state == StateOn {
		return pr.RisingUrl, pr.RisingVideo, pr.RisingSerial
	}
	return pr.FallingUrl, pr.FallingVideo, pr.FallingSerial
}

// WatchedEdge is the edge detection an input needs. Any configured action
// watches both edges so the stored state keeps following the line.
func (pr *PinRecord) WatchedEdge() drivers.Edge {
	rising := len(pr.RisingUrl)+len(pr.RisingVideo)+len(pr.RisingSerial) > 0
	falling := len(pr.FallingUrl)+len(pr.FallingVideo)+len(pr.FallingSerial) > 0
	if pr.Direction != DirectionIn || !(rising || falling) {
		return drivers.EdgeNone
	}
	return drivers.EdgeBoth
}

// Label names the pin in logs and topics.
func (pr *PinRecord) Label() string {
	if len(pr.Name) > 0 {
		return pr.Name
	}
	return "pin" + strconv.Itoa(int(pr.PinNum))
}

// PinPatch holds the fields of an update; nil fields are left unchanged.
// State is applied by driving the line, never copied.
type PinPatch struct {
	State          *State  `json:"state,omitempty"`
	Name           *string `json:"name,omitempty"`
	Color          *string `json:"color,omitempty"`
	CallbackMethod *string `json:"callback_method,omitempty"`

	RisingUrl     *string `json:"rising_url,omitempty"`
	FallingUrl    *string `json:"falling_url,omitempty"`
	RisingVideo   *string `json:"rising_video,omitempty"`
	FallingVideo  *string `json:"falling_video,omitempty"`
	RisingSerial  *string `json:"rising_serial,omitempty"`
	FallingSerial *string `json:"falling_serial,omitempty"`
}

func StatePatch(state State) *PinPatch {
	return &PinPatch{State: &state}
}

func (pp *PinPatch) apply(pr *PinRecord) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&pr.Name, pp.Name)
	set(&pr.Color, pp.Color)
	set(&pr.CallbackMethod, pp.CallbackMethod)
	set(&pr.RisingUrl, pp.RisingUrl)
	set(&pr.FallingUrl, pp.FallingUrl)
	set(&pr.RisingVideo, pp.RisingVideo)
	set(&pr.FallingVideo, pp.FallingVideo)
	set(&pr.RisingSerial, pp.RisingSerial)
	set(&pr.FallingSerial, pp.FallingSerial)
}

// Pin is a registered record bound to its driver line.
type Pin struct {
	lock   sync.Mutex
	record PinRecord

	// opLock serializes output operations, pulses included
	opLock     sync.Mutex
	lastDriven State
	lastChange time.Time

	input  drivers.DigitalInput
	output drivers.DigitalOutput
}

// Record returns a copy of the current record.
func (p *Pin) Record() PinRecord {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.record
}
