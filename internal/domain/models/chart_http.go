package models

import "time"

// ChartRequest addresses a chart over HTTP.
type ChartRequest struct {
	CoinUID  string `param:"uid" validate:"required"`
	Currency string `query:"currency" default:"usd" validate:"required,min=3,max=8"`
	Range    string `query:"range" default:"today" validate:"required,oneof=today day1 week1 week2 month1 month3 month6 year1 year2"`
}

type ChartPointResponse struct {
	Timestamp int64   `json:"timestamp"`
	Value     string  `json:"value"`
	Volume    *string `json:"volume,omitempty"`
}

type ChartResponse struct {
	CoinUID        string               `json:"coin_uid"`
	Currency       string               `json:"currency"`
	Range          string               `json:"range"`
	StartTimestamp time.Time            `json:"start_timestamp"`
	EndTimestamp   time.Time            `json:"end_timestamp"`
	Expired        bool                 `json:"expired"`
	Points         []ChartPointResponse `json:"points"`
}

type LastSyncResponse struct {
	CoinUID   string     `json:"coin_uid"`
	Currency  string     `json:"currency"`
	Range     string     `json:"range"`
	Synced    bool       `json:"synced"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewChartResponse shapes a chart for JSON output.
func NewChartResponse(info ChartInfo, key ChartKey) ChartResponse {
	points := make([]ChartPointResponse, 0, len(info.Points))
	for _, p := range info.Points {
		pr := ChartPointResponse{Timestamp: p.Timestamp.Unix(), Value: p.Value.String()}
		if vol, ok := p.Volume(); ok {
			s := vol.String()
			pr.Volume = &s
		}
		points = append(points, pr)
	}
	return ChartResponse{
		CoinUID:        key.Instrument.UID,
		Currency:       key.CurrencyCode,
		Range:          string(key.RangeType),
		StartTimestamp: info.StartTimestamp.UTC(),
		EndTimestamp:   info.EndTimestamp.UTC(),
		Expired:        info.Expired,
		Points:         points,
	}
}
