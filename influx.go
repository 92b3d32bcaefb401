package pinbox

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

const influxMeasurement = "pin_state"

type InfluxConfig struct {
	Host         string `json:"host" yaml:"host"`
	Token        string `json:"token" yaml:"token"`
	Organization string `json:"organization" yaml:"organization"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	Measurement  string `json:"measurement" yaml:"measurement"`
}

// InfluxRecorder writes one point per pin state change.
type InfluxRecorder struct {
	measurement string
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
}

func NewInfluxRecorder(cfg InfluxConfig) (*InfluxRecorder, error) {
	if len(cfg.Host) == 0 || len(cfg.Bucket) == 0 {
		return nil, errors.New("influx host and bucket are required")
	}
	measurement := cfg.Measurement
	if len(measurement) == 0 {
		measurement = influxMeasurement
	}

	client := influxdb2.NewClient(cfg.Host, cfg.Token)
	return &InfluxRecorder{
		measurement: measurement,
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
	}, nil
}

func (ir *InfluxRecorder) String() string {
	return "influx"
}

func (ir *InfluxRecorder) PinStateChanged(ctx context.Context, rec PinRecord, at time.Time) error {
	point := influxdb2.NewPoint(ir.measurement,
		map[string]string{
			"name":      rec.Label(),
			"pin_num":   strconv.Itoa(int(rec.PinNum)),
			"direction": string(rec.Direction),
		},
		map[string]interface{}{
			"on": rec.State == StateOn,
		},
		at,
	)

	err := ir.writer.WritePoint(ctx, point)
	if err != nil {
		return errors.Wrap(err, "failed to write influx point")
	}
	return nil
}

func (ir *InfluxRecorder) Close() {
	ir.client.Close()
}
