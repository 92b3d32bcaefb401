package pinbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	name string
	fail bool

	lock    sync.Mutex
	records []PinRecord
}

func (rs *recordingSink) String() string {
	return rs.name
}

func (rs *recordingSink) PinStateChanged(ctx context.Context, rec PinRecord, at time.Time) error {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.records = append(rs.records, rec)
	if rs.fail {
		return errors.New("sink down")
	}
	return nil
}

func (rs *recordingSink) received() []PinRecord {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return append([]PinRecord(nil), rs.records...)
}

func TestBroadcasterDeliversToEverySink(t *testing.T) {
	failing := &recordingSink{name: "failing", fail: true}
	healthy := &recordingSink{name: "healthy"}

	b := NewBroadcaster(0, failing)
	b.AddSink(healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	b.Publish(PinRecord{Id: 1, Name: "lever-1", State: StateOn})
	b.Publish(PinRecord{Id: 1, Name: "lever-1", State: StateOff})

	assert.Eventually(t, func() bool {
		return len(healthy.received()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, failing.received(), 2)
	assert.Equal(t, StateOff, healthy.received()[1].State)
	assert.Zero(t, b.Drops())

	cancel()
	select {
	case <-b.Stopped():
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(2)

	for i := 0; i < 5; i++ {
		b.Publish(PinRecord{Id: i})
	}

	assert.Equal(t, uint32(3), b.Drops())
}
