package pinbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/pinbox/drivers"
	"github.com/hubertat/pinbox/mqtt"
)

const defaultDriverName = "gpio"

// PinBox is the whole service: drivers, pins and everything reacting to
// them, configured from a single file.
type PinBox struct {
	Name string `json:"name" yaml:"name"`
	Host string `json:"host" yaml:"host"`

	Driver       string `json:"driver" yaml:"driver"`
	Pull         string `json:"pull" yaml:"pull"`
	BounceTime   string `json:"bounce_time" yaml:"bounce_time"`
	PulsePeriod  string `json:"pulse_period" yaml:"pulse_period"`
	GapPeriod    string `json:"gap_period" yaml:"gap_period"`
	SettleWindow string `json:"settle_window" yaml:"settle_window"`

	HttpAddr string         `json:"http_addr" yaml:"http_addr"`
	Callback CallbackConfig `json:"callback" yaml:"callback"`
	Video    VideoConfig    `json:"video" yaml:"video"`
	Serial   SerialConfig   `json:"serial" yaml:"serial"`

	MqttBroker string        `json:"mqtt_broker" yaml:"mqtt_broker"`
	Influx     *InfluxConfig `json:"influx" yaml:"influx"`

	HkPin       string `json:"hk_pin" yaml:"hk_pin"`
	HkDirectory string `json:"hk_directory" yaml:"hk_directory"`
	HkAddress   string `json:"hk_address" yaml:"hk_address"`
	HkDebug     bool   `json:"hk_debug" yaml:"hk_debug"`

	Debug bool        `json:"debug" yaml:"debug"`
	Pins  []PinRecord `json:"pins" yaml:"pins"`

	Gpio       *drivers.GpIO         `json:"gpio" yaml:"gpio"`
	Cdev       *drivers.CdevIO       `json:"cdev" yaml:"cdev"`
	Periph     *drivers.PeriphIO     `json:"periph" yaml:"periph"`
	FakeDriver *drivers.MockIoDriver `json:"mock_driver" yaml:"mock_driver"`

	ioDrivers   map[string]drivers.IoDriver
	registry    *Registry
	dispatcher  *Dispatcher
	actions     *Actions
	video       *VideoSupervisor
	serial      *SerialLink
	broadcaster *Broadcaster
	mqttClient  *mqtt.MqttClient
	influx      *InfluxRecorder
	homeKit     *HomeKitBridge
}

func (pb *PinBox) defaultDriver() string {
	if len(pb.Driver) > 0 {
		return pb.Driver
	}
	if len(pb.ioDrivers) == 1 {
		for name := range pb.ioDrivers {
			return name
		}
	}
	return defaultDriverName
}

func (pb *PinBox) assignDriver(driver drivers.IoDriver) {
	switch d := driver.(type) {
	case *drivers.GpIO:
		pb.Gpio = d
	case *drivers.CdevIO:
		pb.Cdev = d
	case *drivers.PeriphIO:
		pb.Periph = d
	case *drivers.MockIoDriver:
		pb.FakeDriver = d
	}
}

// InitDrivers sets up every configured driver. With none configured, the
// one named by Driver (gpio by default) is used.
func (pb *PinBox) InitDrivers(ctx context.Context) error {
	bounce, err := parseDuration(pb.BounceTime, drivers.DefaultBounceTime)
	if err != nil {
		return err
	}

	if pb.Gpio == nil && pb.Cdev == nil && pb.Periph == nil && pb.FakeDriver == nil {
		name := pb.Driver
		if len(name) == 0 {
			name = defaultDriverName
		}
		driver, found := drivers.MapAllIoDrivers()[name]
		if !found {
			return errors.Wrapf(ErrUnknownDriver, "%q", name)
		}
		pb.assignDriver(driver)
	}

	pb.ioDrivers = make(map[string]drivers.IoDriver)

	if pb.Gpio != nil {
		pb.Gpio.BounceTime = bounce
		pb.ioDrivers[pb.Gpio.String()] = pb.Gpio
	}

	if pb.Cdev != nil {
		pb.Cdev.BounceTime = bounce
		pb.ioDrivers[pb.Cdev.String()] = pb.Cdev
	}

	if pb.Periph != nil {
		pb.Periph.BounceTime = bounce
		pb.ioDrivers[pb.Periph.String()] = pb.Periph
	}

	if pb.FakeDriver != nil {
		pb.ioDrivers[pb.FakeDriver.String()] = pb.FakeDriver
	}

	for _, driver := range pb.ioDrivers {
		err := driver.Setup(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to setup %s driver", driver)
		}
	}

	return nil
}

// Init builds the registry, dispatcher and actions, then creates every
// configured pin.
func (pb *PinBox) Init() error {
	if pb.ioDrivers == nil {
		return errors.New("drivers not initialized")
	}

	pulse, err := parseDuration(pb.PulsePeriod, defaultPulsePeriod)
	if err != nil {
		return err
	}
	gap, err := parseDuration(pb.GapPeriod, defaultGapPeriod)
	if err != nil {
		return err
	}
	settle, err := parseDuration(pb.SettleWindow, defaultSettleWindow)
	if err != nil {
		return err
	}
	callbackTimeout, err := parseDuration(pb.Callback.Timeout, 0)
	if err != nil {
		return err
	}
	stopTimeout, err := parseDuration(pb.Video.StopTimeout, defaultVideoStopTimeout)
	if err != nil {
		return err
	}

	pb.video = NewVideoSupervisor(pb.Video.Player, pb.Video.Args)
	pb.video.RestartOnPress = pb.Video.RestartOnPress
	pb.video.StopTimeout = stopTimeout
	pb.video.Verbose = pb.Video.Verbose

	var serialOut io.Writer
	if len(pb.Serial.Port) > 0 {
		pb.serial, err = OpenSerial(pb.Serial.Port, pb.Serial.Baud)
		if err != nil {
			return err
		}
		serialOut = pb.serial
	}

	pb.actions = NewActions(&http.Client{Timeout: callbackTimeout}, pb.video, serialOut)
	if len(pb.Callback.Method) > 0 {
		pb.actions.DefaultMethod, err = callbackMethod(pb.Callback.Method)
		if err != nil {
			return err
		}
	}

	pb.registry = NewRegistry(pb.ioDrivers, pb.defaultDriver())
	pb.registry.PulsePeriod = pulse
	pb.registry.GapPeriod = gap
	pb.registry.Pull = drivers.ParsePull(pb.Pull)
	pb.registry.VideoDir = pb.Video.Dir
	if len(pb.registry.VideoDir) == 0 {
		pb.registry.VideoDir = defaultVideoDir
	}

	pb.dispatcher = NewDispatcher(pb.registry, pb.actions)
	pb.dispatcher.SettleWindow = settle

	pb.broadcaster = NewBroadcaster(defaultNotifyQueue)
	pb.registry.OnChange(pb.broadcaster.Publish)
	pb.dispatcher.OnChange(pb.broadcaster.Publish)
	pb.registry.SetListener(pb.dispatcher)

	for _, rec := range pb.Pins {
		created, err := pb.registry.Create(expandHost(rec, pb.Host))
		if err != nil {
			return errors.Wrapf(err, "failed to create pin %s", rec.Label())
		}
		log.Debug("pin ready", "id", created.Id, "pin", created.Label(), "direction", created.Direction, "state", created.State)
	}

	return nil
}

func (pb *PinBox) Registry() *Registry {
	return pb.registry
}

func (pb *PinBox) VideoPlayer() *VideoSupervisor {
	return pb.video
}

func (pb *PinBox) InitMqtt() (err error) {
	if len(pb.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	name := pb.Name
	if len(name) == 0 {
		name = homeKitBridgeName
	}

	mc, err := mqtt.NewMqttClient(pb.MqttBroker, name)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	pb.mqttClient = mc

	err = mc.Connect([]mqtt.MqttHandler{NewMqttCommands(name, pb.registry)})
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
		return
	}

	pb.broadcaster.AddSink(NewMqttSink(name, mc))
	return
}

func (pb *PinBox) InitInflux() (err error) {
	if pb.Influx == nil {
		return errors.New("influx not configured")
	}
	pb.influx, err = NewInfluxRecorder(*pb.Influx)
	if err != nil {
		return
	}
	pb.broadcaster.AddSink(pb.influx)
	return
}

func (pb *PinBox) InitHomeKit() {
	pb.homeKit = NewHomeKitBridge(pb.registry)
	pb.homeKit.Name = pb.Name
	pb.homeKit.Pin = pb.HkPin
	pb.homeKit.Directory = pb.HkDirectory
	pb.homeKit.Address = pb.HkAddress
	pb.homeKit.Debug = pb.HkDebug
	pb.broadcaster.AddSink(pb.homeKit)
}

// HomeKitEnabled reports whether a valid 8 digit pairing pin is set.
func (pb *PinBox) HomeKitEnabled() bool {
	if len(pb.HkPin) != 8 {
		return false
	}
	return strings.Trim(pb.HkPin, "0123456789") == ""
}

func (pb *PinBox) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	if pb.homeKit == nil {
		return errors.New("HomeKit not initialized")
	}
	return pb.homeKit.ListenAndServe(ctx, firmwareVersion)
}

// StartBroadcast starts delivering state changes to the sinks registered
// so far.
func (pb *PinBox) StartBroadcast(ctx context.Context) {
	pb.broadcaster.Start(ctx)
}

func (pb *PinBox) StartHttp(ctx context.Context) error {
	addr := pb.HttpAddr
	if len(addr) == 0 {
		addr = defaultHttpAddr
	}
	return NewServer(addr, pb.registry, pb.video).ListenAndServe(ctx)
}

// Close stops edge delivery before the player and the serial port are shut
// down.
func (pb *PinBox) Close() (err error) {
	for _, driver := range pb.ioDrivers {
		if driver != nil {
			closeErr := driver.Close()
			if closeErr != nil {
				if err == nil {
					err = closeErr
				} else {
					err = errors.Wrap(err, closeErr.Error())
				}
			}
		}
	}

	if pb.dispatcher != nil {
		pb.dispatcher.Close()
	}

	if pb.video != nil {
		pb.video.Stop()
	}

	if pb.serial != nil {
		if closeErr := pb.serial.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "failed to close serial port")
		}
	}

	if pb.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		pb.mqttClient.Disconnect(ctx)
		cancel()
	}

	if pb.influx != nil {
		pb.influx.Close()
	}

	return
}

func (pb *PinBox) PrintIoStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active io drivers ===")
	for driverName, driver := range pb.ioDrivers {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| driver: %s\n", driverName)
		inputs, outputs := driver.GetAllIo()
		fmt.Fprintf(writer, "| in pins: ")
		for _, inpin := range inputs {
			fmt.Fprintf(writer, "%d, ", inpin)
		}
		fmt.Fprintf(writer, "\n| out pins: ")
		for _, outpin := range outputs {
			fmt.Fprintf(writer, "%d, ", outpin)
		}
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "--------")
	}
	fmt.Fprintln(writer, "=== pins ===")
	if pb.registry != nil {
		for _, rec := range pb.registry.List() {
			fmt.Fprintf(writer, "| %2d %-12s %-3s pin %2d %s\n", rec.Id, rec.Label(), rec.Direction, rec.PinNum, rec.State)
		}
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
