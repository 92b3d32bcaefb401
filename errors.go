package pinbox

import "github.com/pkg/errors"

var (
	ErrPinNotFound      = errors.New("pin doesn't exist")
	ErrNoPayload        = errors.New("must supply data")
	ErrInvalidState     = errors.New("invalid pin state, expected on, off, pulse or pulse01")
	ErrInvalidDirection = errors.New("invalid pin direction, expected in or out")
	ErrInvalidMethod    = errors.New("invalid callback method, expected GET or PUT")
	ErrDuplicate        = errors.New("pin already registered")
	ErrUnknownDriver    = errors.New("io driver not set up")
)
