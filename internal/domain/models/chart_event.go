package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChartEventUpdated  = "updated"
	ChartEventNotFound = "not_found"
)

// ChartEvent is the wire form of an observer notification (Kafka value, websocket frame).
type ChartEvent struct {
	Type     string            `json:"type"`
	CoinUID  string            `json:"coin_uid"`
	Currency string            `json:"currency"`
	Range    string            `json:"range"`
	Expired  bool              `json:"expired,omitempty"`
	Start    *time.Time        `json:"start,omitempty"`
	End      *time.Time        `json:"end,omitempty"`
	Points   []ChartPointEvent `json:"points,omitempty"`
}

type ChartPointEvent struct {
	T      int64            `json:"t"` // unix seconds
	V      decimal.Decimal  `json:"v"`
	Volume *decimal.Decimal `json:"volume,omitempty"`
}

// NewChartUpdatedEvent builds an "updated" event for key.
func NewChartUpdatedEvent(info ChartInfo, key ChartKey) ChartEvent {
	start, end := info.StartTimestamp.UTC(), info.EndTimestamp.UTC()
	points := make([]ChartPointEvent, 0, len(info.Points))
	for _, p := range info.Points {
		pe := ChartPointEvent{T: p.Timestamp.Unix(), V: p.Value}
		if vol, ok := p.Volume(); ok {
			pe.Volume = &vol
		}
		points = append(points, pe)
	}
	return ChartEvent{
		Type:     ChartEventUpdated,
		CoinUID:  key.Instrument.UID,
		Currency: key.CurrencyCode,
		Range:    string(key.RangeType),
		Expired:  info.Expired,
		Start:    &start,
		End:      &end,
		Points:   points,
	}
}

// NewChartNotFoundEvent builds a "not_found" event for key.
func NewChartNotFoundEvent(key ChartKey) ChartEvent {
	return ChartEvent{
		Type:     ChartEventNotFound,
		CoinUID:  key.Instrument.UID,
		Currency: key.CurrencyCode,
		Range:    string(key.RangeType),
	}
}
