package pinbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultVideoDir = "/home/pi/Videos"
const defaultHttpAddr = ":8080"
const hostPlaceholder = "{host}"

type CallbackConfig struct {
	Method  string `json:"method" yaml:"method"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type VideoConfig struct {
	Player         string   `json:"player" yaml:"player"`
	Args           []string `json:"args" yaml:"args"`
	Dir            string   `json:"dir" yaml:"dir"`
	RestartOnPress bool     `json:"restart_on_press" yaml:"restart_on_press"`
	StopTimeout    string   `json:"stop_timeout" yaml:"stop_timeout"`
	Verbose        bool     `json:"verbose" yaml:"verbose"`
}

type SerialConfig struct {
	Port string `json:"port" yaml:"port"`
	Baud int    `json:"baud" yaml:"baud"`
}

// LoadConfig reads a PinBox from a JSON file, or YAML when the file ends
// with .yaml or .yml.
func LoadConfig(path string) (*PinBox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config file %s", path)
	}

	pb := &PinBox{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, pb)
	default:
		err = json.Unmarshal(data, pb)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling config %s", path)
	}

	return pb, pb.validateDurations()
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if len(value) == 0 {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", value)
	}
	return d, nil
}

func (pb *PinBox) validateDurations() error {
	for _, value := range []string{
		pb.BounceTime, pb.PulsePeriod, pb.GapPeriod, pb.SettleWindow,
		pb.Callback.Timeout, pb.Video.StopTimeout,
	} {
		if _, err := parseDuration(value, 0); err != nil {
			return err
		}
	}
	return nil
}

// expandHost replaces {host} in the callback urls of rec.
func expandHost(rec PinRecord, host string) PinRecord {
	if len(host) == 0 {
		return rec
	}
	rec.RisingUrl = strings.ReplaceAll(rec.RisingUrl, hostPlaceholder, host)
	rec.FallingUrl = strings.ReplaceAll(rec.FallingUrl, hostPlaceholder, host)
	return rec
}
