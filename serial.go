package pinbox

import (
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const defaultSerialBaud = 9600

// SerialLink is the one persistent serial connection shared by all inputs.
type SerialLink struct {
	name string
	lock sync.Mutex
	port serial.Port
}

func OpenSerial(name string, baud int) (*SerialLink, error) {
	if baud <= 0 {
		baud = defaultSerialBaud
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", name)
	}
	return &SerialLink{name: name, port: port}, nil
}

func (sl *SerialLink) Write(p []byte) (int, error) {
	sl.lock.Lock()
	defer sl.lock.Unlock()

	n, err := sl.port.Write(p)
	if err != nil {
		return n, errors.Wrapf(err, "serial write to %s", sl.name)
	}
	return n, nil
}

func (sl *SerialLink) String() string {
	return sl.name
}

func (sl *SerialLink) Close() error {
	sl.lock.Lock()
	defer sl.lock.Unlock()
	return sl.port.Close()
}
