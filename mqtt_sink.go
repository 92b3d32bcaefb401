package pinbox

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/pinbox/mqtt"
)

type mqttStatePayload struct {
	Id     int       `json:"id"`
	Name   string    `json:"name,omitempty"`
	PinNum uint16    `json:"pin_num"`
	State  State     `json:"state"`
	At     time.Time `json:"at"`
}

// MqttSink publishes every state change to <prefix>/pins/<label>/state.
type MqttSink struct {
	prefix    string
	publisher mqtt.Publisher
}

func NewMqttSink(prefix string, publisher mqtt.Publisher) *MqttSink {
	return &MqttSink{prefix: prefix, publisher: publisher}
}

func (ms *MqttSink) String() string {
	return "mqtt"
}

func StateTopic(prefix string, rec PinRecord) string {
	return path.Join(prefix, "pins", rec.Label(), "state")
}

func (ms *MqttSink) PinStateChanged(ctx context.Context, rec PinRecord, at time.Time) error {
	payload, err := json.Marshal(mqttStatePayload{
		Id:     rec.Id,
		Name:   rec.Name,
		PinNum: rec.PinNum,
		State:  rec.State,
		At:     at,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode mqtt payload")
	}

	return ms.publisher.Publish(StateTopic(ms.prefix, rec), payload)
}

// MqttCommands drives named pins from <prefix>/pins/<name>/set messages
// carrying a bare state (on, off, pulse, pulse01).
type MqttCommands struct {
	prefix   string
	registry *Registry
	logger   *log.Logger
}

func NewMqttCommands(prefix string, registry *Registry) *MqttCommands {
	return &MqttCommands{
		prefix:   prefix,
		registry: registry,
		logger:   log.WithPrefix("mqtt commands"),
	}
}

func (mc *MqttCommands) MqttSubscribeTopic() string {
	return path.Join(mc.prefix, "pins", "+", "set")
}

func (mc *MqttCommands) MqttHandle(pub *paho.Publish) {
	parts := strings.Split(strings.TrimPrefix(pub.Topic, mc.prefix+"/"), "/")
	if len(parts) != 3 || parts[0] != "pins" || parts[2] != "set" {
		mc.logger.Warn("unexpected topic", "topic", pub.Topic)
		return
	}
	name := parts[1]
	state := State(strings.TrimSpace(string(pub.Payload)))

	// pulses block for pulse + gap, keep the mqtt receive loop free
	go func() {
		_, err := mc.registry.UpdateByName(name, StatePatch(state))
		if err != nil {
			mc.logger.Error("failed to set pin", "name", name, "state", state, "err", err)
		}
	}()
}
