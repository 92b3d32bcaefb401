package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/pinbox"
	"github.com/hubertat/pinbox/drivers"
)

var (
	Version string
	Build   string

	config = flag.String("config", "", "optional configuration file, its driver settings are replaced by the mock driver")
	addr   = flag.String("addr", ":8080", "http listen address")
	toggle = flag.Duration("toggle", 0, "flip every input at this interval, 0 disables")
)

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)
	log.Info("pinbox started")
	log.Info("mock instance for testing purposes, should work on MacOs")

	pb := &pinbox.PinBox{}
	if len(*config) > 0 {
		loaded, err := pinbox.LoadConfig(*config)
		if err != nil {
			log.Fatal("can't load config", "err", err)
		}
		pb = loaded
	} else {
		pb.Pins = []pinbox.PinRecord{
			{PinNum: 21, Direction: pinbox.DirectionOut, Name: "fake output"},
			{PinNum: 4, Direction: pinbox.DirectionIn, Name: "fake input", FallingVideo: "gates.mp4"},
		}
	}
	pb.Gpio, pb.Cdev, pb.Periph = nil, nil, nil
	pb.Driver = ""
	for i := range pb.Pins {
		pb.Pins[i].DriverName = ""
	}
	pb.FakeDriver = &drivers.MockIoDriver{}
	pb.HttpAddr = *addr
	pb.Video.Player = "echo"
	pb.Video.Verbose = true
	pb.Serial.Port = ""

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("will init pinbox drivers...")
	err := pb.InitDrivers(ctx)
	if err == nil {
		err = pb.Init()
	}
	if err != nil {
		log.Error("failed to init pinbox", "err", err)
		pb.Close()
		os.Exit(1)
	}
	defer pb.Close()

	pb.FakeDriver.MonitorStateChanges(os.Stdout)
	pb.StartBroadcast(ctx)
	pb.PrintIoStatus(os.Stdout)

	if *toggle > 0 {
		go flipInputs(ctx, pb.FakeDriver, *toggle)
	}

	err = pb.StartHttp(ctx)
	if err != nil {
		log.Error("http server failed", "err", err)
	}
}

func flipInputs(ctx context.Context, driver *drivers.MockIoDriver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, input := range driver.Inputs() {
				level, _ := input.GetState()
				input.SetLevel(!level)
			}
		}
	}
}
