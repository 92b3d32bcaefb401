package pinbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	lock sync.Mutex
	msgs []published
}

func (fp *fakePublisher) Publish(topic string, payload []byte) error {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.msgs = append(fp.msgs, published{topic: topic, payload: payload})
	return nil
}

func TestStateTopic(t *testing.T) {
	assert.Equal(t, "levers/pins/lever-1/state", StateTopic("levers", PinRecord{PinNum: 18, Name: "lever-1"}))
	assert.Equal(t, "levers/pins/pin21/state", StateTopic("levers", PinRecord{PinNum: 21}))
}

func TestMqttSinkPublishes(t *testing.T) {
	fp := &fakePublisher{}
	sink := NewMqttSink("levers", fp)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := sink.PinStateChanged(context.Background(), PinRecord{Id: 3, PinNum: 24, Name: "lever-3", State: StateOn}, at)
	require.NoError(t, err)

	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "levers/pins/lever-3/state", fp.msgs[0].topic)

	payload := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(fp.msgs[0].payload, &payload))
	assert.Equal(t, "on", payload["state"])
	assert.Equal(t, float64(24), payload["pin_num"])
	assert.Equal(t, "2024-05-01T10:00:00Z", payload["at"])
}

func TestMqttCommands(t *testing.T) {
	r, md, _ := newMockRegistry(t)
	_, err := r.Create(PinRecord{PinNum: 21, Direction: DirectionOut, Name: "appr_bell"})
	require.NoError(t, err)

	mc := NewMqttCommands("block", r)
	assert.Equal(t, "block/pins/+/set", mc.MqttSubscribeTopic())

	mc.MqttHandle(&paho.Publish{Topic: "block/pins/appr_bell/set", Payload: []byte("on\n")})

	out, err := md.MockOutput(21)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		on, _ := out.GetState()
		return on
	}, time.Second, 5*time.Millisecond)

	mc.MqttHandle(&paho.Publish{Topic: "block/pins/set", Payload: []byte("off")})
	mc.MqttHandle(&paho.Publish{Topic: "block/pins/missing/set", Payload: []byte("off")})

	time.Sleep(20 * time.Millisecond)
	got, err := r.GetByName("appr_bell")
	require.NoError(t, err)
	assert.Equal(t, StateOn, got.State)
}
