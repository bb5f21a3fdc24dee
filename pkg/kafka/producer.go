package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const contentTypeHeader = "content-type"

// Producer publishes keyed messages through a kafka-go writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	w, err := cfg.writer()
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Producer{writer: w, comp: cfg.Compression, now: time.Now}, nil
}

// Message is one record to publish. Value is sent raw when it is []byte or
// string and JSON-encoded otherwise.
type Message struct {
	Key     []byte
	Value   any
	Headers map[string]string
}

// Publish sends a single message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := p.now()
	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		km, err := buildMessage(topic, m, start)
		if err != nil {
			return err
		}
		out[i] = km
		size += int64(len(km.Value))
	}

	err := p.writer.WriteMessages(ctx, out...)
	producerMetricsFor().observe(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(out), topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func buildMessage(topic string, m Message, at time.Time) (kafka.Message, error) {
	km := kafka.Message{Topic: topic, Key: m.Key, Time: at}
	switch v := m.Value.(type) {
	case []byte:
		km.Value = v
	case string:
		km.Value = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("marshal message for %s: %w", topic, err)
		}
		km.Value = b
		km.Headers = append(km.Headers, kafka.Header{Key: contentTypeHeader, Value: []byte("application/json")})
	}
	for k, v := range m.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km, nil
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetricsOnce sync.Once
	producerMetricsInst *producerMetrics
)

func producerMetricsFor() *producerMetrics {
	producerMetricsOnce.Do(func() {
		producerMetricsInst = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "chartsync_kafka_producer_messages_total",
				Help: "Messages published to Kafka",
			}, []string{"topic", "compression", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "chartsync_kafka_producer_bytes_total",
				Help: "Payload bytes published to Kafka",
			}, []string{"topic", "compression"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "chartsync_kafka_producer_publish_seconds",
				Help:    "Kafka publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerMetricsInst
}

func (m *producerMetrics) observe(topic, comp string, size int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, comp, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, comp).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
