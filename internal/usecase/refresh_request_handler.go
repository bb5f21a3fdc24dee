package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
)

// RefreshJobType is the queue message type carrying a RefreshRequest.
const RefreshJobType = "chart.refresh"

// RefreshRequest asks for one chart to be synced. It is the value of a refresh
// topic message and the payload of a RefreshJobType queue job.
type RefreshRequest struct {
	CoinUID  string `json:"coin_uid"`
	Currency string `json:"currency"`
	Range    string `json:"range"`
}

// RefreshRequestHandler syncs charts on request. It serves both the Kafka
// refresh topic and the Redis job queue.
type RefreshRequestHandler struct {
	topic  string
	syncer *ChartSyncer
	l      *applogger.Logger
}

func NewRefreshRequestHandler(topic string, syncer *ChartSyncer, l *applogger.Logger) *RefreshRequestHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &RefreshRequestHandler{topic: topic, syncer: syncer, l: l}
}

func (h *RefreshRequestHandler) Topic() string { return h.topic }

func (h *RefreshRequestHandler) Name() string { return "chart-refresh" }

func (h *RefreshRequestHandler) Type() string { return RefreshJobType }

// Handle returns an error only for failures worth retrying. Malformed
// requests, unknown instruments and duplicates of a running sync are dropped.
func (h *RefreshRequestHandler) Handle(ctx context.Context, data []byte) error {
	var req RefreshRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.l.Warn("drop malformed refresh request", applogger.Error(err))
		return nil
	}
	if req.CoinUID == "" {
		h.l.Warn("drop refresh request without coin_uid")
		return nil
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}
	if req.Range == "" {
		req.Range = string(models.RangeToday)
	}
	rt, err := models.ParseRangeType(req.Range)
	if err != nil {
		h.l.Warn("drop refresh request", applogger.String("coin_uid", req.CoinUID), applogger.Error(err))
		return nil
	}

	outcome, err := h.syncer.SyncInstrument(ctx, req.CoinUID, req.Currency, rt)
	if err != nil {
		if IsSkippable(err) {
			h.l.Debug("skip refresh request", applogger.String("coin_uid", req.CoinUID), applogger.Error(err))
			return nil
		}
		return fmt.Errorf("refresh %s/%s/%s: %w", req.CoinUID, req.Currency, req.Range, err)
	}
	h.l.Debug("refresh request handled",
		applogger.String("coin_uid", req.CoinUID),
		applogger.String("outcome", string(outcome)),
	)
	return nil
}
