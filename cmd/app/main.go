package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"
	"github.com/pkg/errors"

	"github.com/hubertat/pinbox"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.json", "path of the configuration file (.json, .yaml or .yml)")
	flagInstall = flag.Bool("install", false, "Install service in os")
	host        = flag.String("host", "", "replaces {host} in callback urls, overrides config host")
	debug       = flag.Bool("debug", false, "debug logging")

	pbService = servicemaker.ServiceMaker{
		User:               "pinbox",
		UserGroups:         []string{"gpio", "dialout", "video"},
		ServicePath:        "/etc/systemd/system/pinbox.service",
		ServiceDescription: "PinBox service: http controlled gpio pins with callbacks, serial and video actions. github.com/hubertat/pinbox",
		ExecDir:            "/srv/pinbox",
		ExecName:           "pinbox",
	}
)

func main() {
	flag.Parse()
	log.Info("pinbox started", "version", Version, "build", Build)

	if *flagInstall {
		err := pbService.InstallService()
		if err != nil {
			log.Fatal("failed to install service", "err", err)
		}
		log.Info("service installed!")
		return
	}

	pb, err := pinbox.LoadConfig(*config)
	if err != nil {
		log.Fatal("can't load config, will terminate", "config", *config, "err", err)
	}
	if len(*host) > 0 {
		pb.Host = *host
	}
	if *debug || pb.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, pb)
	cancel()
	if err != nil {
		log.Error("pinbox stopped", "err", err)
		os.Exit(1)
	}
}

// run owns the pinbox from driver setup to shutdown, closing it on every
// return path.
func run(ctx context.Context, pb *pinbox.PinBox) error {
	defer func() {
		if err := pb.Close(); err != nil {
			log.Error("failed to close pinbox", "err", err)
		}
	}()

	log.Info("will init pinbox drivers...")
	err := pb.InitDrivers(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to init drivers")
	}

	log.Info("will init pins...")
	err = pb.Init()
	if err != nil {
		return errors.Wrap(err, "failed to init pins")
	}

	if len(pb.MqttBroker) > 0 {
		err = pb.InitMqtt()
		if err != nil {
			log.Error("mqtt disabled", "err", err)
		}
	}

	if pb.Influx != nil {
		err = pb.InitInflux()
		if err != nil {
			log.Error("influx disabled", "err", err)
		}
	}

	if pb.HomeKitEnabled() {
		pb.InitHomeKit()
	} else {
		log.Info("HomeKit not configured, disabled")
	}

	pb.StartBroadcast(ctx)
	pb.PrintIoStatus(os.Stdout)

	if pb.HomeKitEnabled() {
		log.Info("Starting with HomeKit server")
		go func() {
			err := pb.StartHomeKit(ctx, Version)
			if err != nil {
				log.Error("HomeKit server stopped", "err", err)
			}
		}()
	}

	return errors.Wrap(pb.StartHttp(ctx), "http server failed")
}
