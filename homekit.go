package pinbox

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "pinbox"
const homeKitBridgeAuthor = "github.com/hubertat"

type hkPin struct {
	outlet *accessory.Outlet
	sw     *accessory.Switch
}

func (hp *hkPin) accessory() *accessory.A {
	if hp.outlet != nil {
		return hp.outlet.A
	}
	return hp.sw.A
}

func (hp *hkPin) set(on bool) {
	if hp.outlet != nil {
		hp.outlet.Outlet.On.SetValue(on)
		return
	}
	hp.sw.Switch.On.SetValue(on)
}

// HomeKitBridge exposes outputs as outlets and inputs as switches that can
// only be read. It is a StateSink, so it follows every state change.
type HomeKitBridge struct {
	Name      string
	Pin       string
	Directory string
	Address   string
	Debug     bool

	registry *Registry
	pins     map[int]*hkPin
	logger   *log.Logger
}

func hkUniqueId(rec PinRecord) uint64 {
	hash := fnv.New64()
	hash.Write([]byte(fmt.Sprintf("Pin_%s_%d_%s", rec.DriverName, rec.PinNum, rec.Direction)))
	return hash.Sum64()
}

func NewHomeKitBridge(registry *Registry) *HomeKitBridge {
	hb := &HomeKitBridge{
		registry: registry,
		pins:     make(map[int]*hkPin),
		logger:   log.WithPrefix("homekit"),
	}

	for _, rec := range registry.List() {
		info := accessory.Info{
			Name:         rec.Label(),
			SerialNumber: fmt.Sprintf("pin:%s:%02d", rec.DriverName, rec.PinNum),
			Manufacturer: homeKitBridgeAuthor,
		}
		id := rec.Id
		on := rec.State == StateOn

		hp := &hkPin{}
		if rec.Direction == DirectionOut {
			hp.outlet = accessory.NewOutlet(info)
			hp.outlet.Outlet.On.SetValue(on)
			hp.outlet.Outlet.On.OnValueRemoteUpdate(func(on bool) {
				_, err := registry.Update(id, StatePatch(stateFromLevel(on)))
				if err != nil {
					hb.logger.Error("failed to set pin from HomeKit", "id", id, "err", err)
				}
			})
		} else {
			hp.sw = accessory.NewSwitch(info)
			hp.sw.Switch.On.SetValue(on)
			hp.sw.Switch.On.OnValueRemoteUpdate(func(bool) {
				current, err := registry.Get(id)
				if err == nil {
					hp.sw.Switch.On.SetValue(current.State == StateOn)
				}
			})
		}
		hp.accessory().Id = hkUniqueId(rec)
		hb.pins[id] = hp
	}

	return hb
}

func (hb *HomeKitBridge) String() string {
	return "homekit"
}

func (hb *HomeKitBridge) PinStateChanged(ctx context.Context, rec PinRecord, at time.Time) error {
	hp, found := hb.pins[rec.Id]
	if !found {
		return nil
	}
	hp.set(rec.State == StateOn)
	return nil
}

func (hb *HomeKitBridge) Accessories(firmwareVersion string) (acc []*accessory.A) {
	for _, rec := range hb.registry.List() {
		hp, found := hb.pins[rec.Id]
		if !found {
			continue
		}
		a := hp.accessory()
		if a.Info != nil && a.Info.FirmwareRevision != nil {
			a.Info.FirmwareRevision.SetValue(firmwareVersion)
		}
		acc = append(acc, a)
	}
	return
}

func (hb *HomeKitBridge) ListenAndServe(ctx context.Context, firmwareVersion string) error {
	hkName := hb.Name
	if len(hkName) < 1 {
		hkName = homeKitBridgeName
	}
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hkName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(hb.Directory) > 1 {
		store = hap.NewFsStore(hb.Directory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, hb.Accessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = hb.Pin
	if len(hb.Address) > 0 {
		hkServer.Addr = hb.Address
	}

	if hb.Debug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	return hkServer.ListenAndServe(ctx)
}
