package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChartSync/internal/domain/models"
)

type published struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), value: b})
	return p.err
}

func TestKafkaChartNotifierPublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	n := NewKafkaChartNotifier(pub, "chartsync.charts", 8, nil)

	points := samplePoints(2, true)
	n.ChartUpdated(models.ChartInfo{
		Points:         points,
		StartTimestamp: points[0].Timestamp,
		EndTimestamp:   points[1].Timestamp,
	}, btcUSD)
	n.ChartNotFound(btcEUR)
	require.NoError(t, n.Close())

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "chartsync.charts", pub.msgs[0].topic)
	assert.Equal(t, btcUSD.String(), pub.msgs[0].key)

	var ev models.ChartEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &ev))
	assert.Equal(t, models.ChartEventUpdated, ev.Type)
	assert.Equal(t, "bitcoin", ev.CoinUID)
	require.Len(t, ev.Points, 2)
	require.NotNil(t, ev.Points[0].Volume)

	require.NoError(t, json.Unmarshal(pub.msgs[1].value, &ev))
	assert.Equal(t, models.ChartEventNotFound, ev.Type)
	assert.Equal(t, btcEUR.String(), pub.msgs[1].key)
}

func TestKafkaChartNotifierSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	n := NewKafkaChartNotifier(pub, "t", 4, nil)

	n.ChartNotFound(btcUSD)
	require.NoError(t, n.Close())
	assert.Len(t, pub.msgs, 1)

	// after Close events are ignored
	n.ChartNotFound(btcUSD)
	assert.Len(t, pub.msgs, 1)
}
