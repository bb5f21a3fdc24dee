package repository

import (
	"context"
	"sync"
	"time"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
)

// EventPublisher is the slice of pkg/kafka.Producer the notifier needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaChartNotifier is a ChartObserver that publishes chart events to a
// topic, keyed by chart key. Observer calls only enqueue; a background loop
// publishes, and events are dropped when the queue is full.
type KafkaChartNotifier struct {
	pub     EventPublisher
	topic   string
	timeout time.Duration
	l       *applogger.Logger

	queue     chan models.ChartEvent
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewKafkaChartNotifier(pub EventPublisher, topic string, buffer int, l *applogger.Logger) *KafkaChartNotifier {
	if l == nil {
		l = applogger.Nop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	n := &KafkaChartNotifier{
		pub:     pub,
		topic:   topic,
		timeout: 10 * time.Second,
		l:       l,
		queue:   make(chan models.ChartEvent, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *KafkaChartNotifier) ChartUpdated(info models.ChartInfo, key models.ChartKey) {
	n.enqueue(models.NewChartUpdatedEvent(info, key))
}

func (n *KafkaChartNotifier) ChartNotFound(key models.ChartKey) {
	n.enqueue(models.NewChartNotFoundEvent(key))
}

func (n *KafkaChartNotifier) enqueue(ev models.ChartEvent) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.queue <- ev:
	default:
		n.l.Warn("chart event dropped, publish queue full",
			applogger.String("type", ev.Type),
			applogger.String("coin_uid", ev.CoinUID),
		)
	}
}

func (n *KafkaChartNotifier) loop() {
	defer close(n.stopped)
	for {
		select {
		case ev := <-n.queue:
			n.publish(ev)
		case <-n.done:
			// flush what is already queued
			for {
				select {
				case ev := <-n.queue:
					n.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (n *KafkaChartNotifier) publish(ev models.ChartEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	key := ev.CoinUID + ":" + ev.Currency + ":" + ev.Range
	if err := n.pub.Publish(ctx, n.topic, []byte(key), ev); err != nil {
		n.l.Error("publish chart event",
			applogger.String("topic", n.topic),
			applogger.String("key", key),
			applogger.Error(err),
		)
	}
}

// Close stops accepting events and waits for the queue to be flushed.
func (n *KafkaChartNotifier) Close() error {
	n.closeOnce.Do(func() { close(n.done) })
	<-n.stopped
	return nil
}
