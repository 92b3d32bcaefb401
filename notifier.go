package pinbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const defaultNotifyQueue = 64
const sinkTimeout = 3 * time.Second

// StateSink receives pin state changes, e.g. to publish or record them.
type StateSink interface {
	String() string
	PinStateChanged(ctx context.Context, rec PinRecord, at time.Time) error
}

type stateEvent struct {
	rec PinRecord
	at  time.Time
}

// Broadcaster hands state changes to the sinks on its own goroutine, so a
// slow broker or database never holds up pin handling. Events that don't
// fit in the queue are dropped and counted.
type Broadcaster struct {
	queue   chan stateEvent
	sinks   []StateSink
	drops   uint32
	stopped chan struct{}
	logger  *log.Logger
}

func NewBroadcaster(size int, sinks ...StateSink) *Broadcaster {
	if size <= 0 {
		size = defaultNotifyQueue
	}
	return &Broadcaster{
		queue:   make(chan stateEvent, size),
		sinks:   sinks,
		stopped: make(chan struct{}),
		logger:  log.WithPrefix("broadcast"),
	}
}

// AddSink registers sink. Must be called before Start.
func (b *Broadcaster) AddSink(sink StateSink) {
	b.sinks = append(b.sinks, sink)
}

// Publish queues rec without blocking.
func (b *Broadcaster) Publish(rec PinRecord) {
	select {
	case b.queue <- stateEvent{rec: rec, at: time.Now()}:
	default:
		atomic.AddUint32(&b.drops, 1)
	}
}

func (b *Broadcaster) Drops() uint32 {
	return atomic.LoadUint32(&b.drops)
}

func (b *Broadcaster) Start(ctx context.Context) {
	go func() {
		defer close(b.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-b.queue:
				b.deliver(ctx, ev)
			}
		}
	}()
}

// Stopped is closed once the delivery goroutine has returned.
func (b *Broadcaster) Stopped() <-chan struct{} {
	return b.stopped
}

func (b *Broadcaster) deliver(ctx context.Context, ev stateEvent) {
	for _, sink := range b.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.PinStateChanged(sctx, ev.rec, ev.at)
		cancel()
		if err != nil {
			b.logger.Warn("state sink failed", "sink", sink, "pin", ev.rec.Label(), "err", err)
		}
	}
}
