// README: Mirrors hub frames to a RabbitMQ fanout exchange for external notification consumers.
package notify

import (
	"context"
	"strings"
	"time"

	"kitchenline/internal/logging"
	"kitchenline/internal/metrics"
	"kitchenline/internal/modules/realtime"
)

type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers map[string]any) error
}

type mirrored struct {
	eventType string
	rooms     string
	frame     []byte
}

const publishTimeout = 5 * time.Second

// AMQPMirror queues frames and publishes them from Run, so the hub never waits on the broker.
// Frames that do not fit in the queue are dropped and counted.
type AMQPMirror struct {
	pub      Publisher
	exchange string
	queue    chan mirrored
}

func NewAMQPMirror(pub Publisher, exchange string, buffer int) *AMQPMirror {
	if buffer <= 0 {
		buffer = 256
	}
	return &AMQPMirror{pub: pub, exchange: exchange, queue: make(chan mirrored, buffer)}
}

func (m *AMQPMirror) Mirror(eventType string, rooms []realtime.Room, frame []byte) {
	names := make([]string, len(rooms))
	for i, r := range rooms {
		names[i] = string(r)
	}
	select {
	case m.queue <- mirrored{eventType: eventType, rooms: strings.Join(names, ","), frame: frame}:
	default:
		metrics.MirrorFailures.Inc()
		logging.Warn().Str("type", eventType).Msg("mirror queue full, dropping event")
	}
}

// Run publishes queued frames until ctx ends.
func (m *AMQPMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-m.queue:
			m.publish(ctx, item)
		}
	}
}

func (m *AMQPMirror) publish(ctx context.Context, item mirrored) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	headers := map[string]any{"rooms": item.rooms}
	if err := m.pub.Publish(pctx, m.exchange, item.eventType, item.frame, headers); err != nil {
		metrics.MirrorFailures.Inc()
		logging.Warn().Err(err).Str("type", item.eventType).Str("exchange", m.exchange).Msg("mirror publish failed")
	}
}
