package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
	"ChartSync/internal/service/wshub"
	"ChartSync/internal/usecase"
	xhttp "ChartSync/pkg/http"
	applogger "ChartSync/pkg/logger"
)

// ChartsEchoHandler serves cached charts, provider fetches, manual syncs and
// the chart event stream.
type ChartsEchoHandler struct {
	logger  *applogger.Logger
	manager *usecase.ChartManager
	syncer  *usecase.ChartSyncer
	hub     *wshub.Hub
}

var chartErrorRules = []xhttp.ErrorRule{
	{Target: domrepo.ErrInstrumentNotFound, Status: http.StatusNotFound, Message: "instrument not found"},
	{Target: domrepo.ErrNoChartData, Status: http.StatusNotFound, Message: "no chart data"},
	{Target: domrepo.ErrProviderFailure, Status: http.StatusBadGateway, Message: "chart provider unavailable"},
	{Target: domrepo.ErrSyncInFlight, Status: http.StatusConflict, Message: "sync already in progress"},
}

func NewChartsEchoHandler(logger *applogger.Logger, manager *usecase.ChartManager, syncer *usecase.ChartSyncer, hub *wshub.Hub) *ChartsEchoHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &ChartsEchoHandler{logger: logger, manager: manager, syncer: syncer, hub: hub}
}

func (h *ChartsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/charts")
	g.GET("/:uid", h.Current)
	g.GET("/:uid/fetch", h.Fetch)
	g.POST("/:uid/sync", h.Sync)
	g.GET("/:uid/last-sync", h.LastSync)
	if h.hub != nil {
		e.GET("/ws/charts", h.Stream)
	}
}

// readChartRequest binds the request and resolves its key. A nil error return
// with ok=false means a response was already written.
func (h *ChartsEchoHandler) readChartRequest(c echo.Context) (models.ChartKey, bool, error) {
	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return models.ChartKey{}, false, xhttp.BadRequestResponse(c, verr)
	}

	key, err := h.manager.ChartKey(c.Request().Context(), req.CoinUID, strings.ToLower(req.Currency), models.RangeType(req.Range))
	if err != nil {
		appErr := xhttp.MapError(err, chartErrorRules...).WithParam("coin_uid", req.CoinUID)
		if appErr.Status == http.StatusInternalServerError {
			h.logger.Error("resolve instrument", applogger.String("coin_uid", req.CoinUID), applogger.Error(err))
		}
		return models.ChartKey{}, false, xhttp.AppErrorResponse(c, appErr)
	}
	return key, true, nil
}

// fail writes err as an API error for key and logs the failures worth a look.
func (h *ChartsEchoHandler) fail(c echo.Context, op string, key models.ChartKey, err error) error {
	appErr := xhttp.MapError(err, chartErrorRules...).WithParam("key", key.String())
	switch appErr.Status {
	case http.StatusInternalServerError:
		h.logger.Error(op, applogger.ChartKey(key), applogger.Error(err))
	case http.StatusBadGateway:
		h.logger.Warn(op, applogger.ChartKey(key), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// Current returns the stored chart. Unknown instruments and missing charts are both 404.
func (h *ChartsEchoHandler) Current(c echo.Context) error {
	key, ok, err := h.readChartRequest(c)
	if !ok {
		return err
	}

	ctx := c.Request().Context()
	info, err := h.manager.CurrentChart(ctx, key.Instrument.UID, key.CurrencyCode, key.RangeType, h.manager.Now())
	if err != nil {
		return h.fail(c, "current chart", key, err)
	}
	if info == nil {
		return h.fail(c, "current chart", key, domrepo.ErrNoChartData)
	}
	return xhttp.SuccessResponse(c, models.NewChartResponse(*info, key))
}

// Fetch asks the provider directly, bypassing storage.
func (h *ChartsEchoHandler) Fetch(c echo.Context) error {
	key, ok, err := h.readChartRequest(c)
	if !ok {
		return err
	}

	info, err := h.manager.FetchKey(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "fetch chart", key, err)
	}
	return xhttp.SuccessResponse(c, models.NewChartResponse(*info, key))
}

type syncResponse struct {
	CoinUID  string `json:"coin_uid"`
	Currency string `json:"currency"`
	Range    string `json:"range"`
	Outcome  string `json:"outcome"`
}

// Sync runs a sync for the key and reports which notification it produced.
func (h *ChartsEchoHandler) Sync(c echo.Context) error {
	key, ok, err := h.readChartRequest(c)
	if !ok {
		return err
	}

	outcome, err := h.syncer.Sync(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "sync chart", key, err)
	}
	return xhttp.SuccessResponse(c, syncResponse{
		CoinUID:  key.Instrument.UID,
		Currency: key.CurrencyCode,
		Range:    string(key.RangeType),
		Outcome:  string(outcome),
	})
}

func (h *ChartsEchoHandler) LastSync(c echo.Context) error {
	key, ok, err := h.readChartRequest(c)
	if !ok {
		return err
	}

	ts, synced, err := h.manager.LastSyncTimestamp(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "last sync timestamp", key, err)
	}
	resp := models.LastSyncResponse{
		CoinUID:  key.Instrument.UID,
		Currency: key.CurrencyCode,
		Range:    string(key.RangeType),
		Synced:   synced,
	}
	if synced {
		ts = ts.UTC()
		resp.Timestamp = &ts
	}
	return xhttp.SuccessResponse(c, resp)
}

// Stream upgrades to a websocket receiving chart events that match the query filter.
func (h *ChartsEchoHandler) Stream(c echo.Context) error {
	f := wshub.Filter{
		CoinUID:  c.QueryParam("coin_uid"),
		Currency: strings.ToLower(c.QueryParam("currency")),
		Range:    c.QueryParam("range"),
	}
	if f.Range != "" && !models.IsValidRangeType(models.RangeType(f.Range)) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("unsupported range").WithParam("range", f.Range))
	}
	if err := h.hub.ServeWS(c.Response(), c.Request(), f); err != nil {
		// the upgrader has already answered the request
		h.logger.Debug("websocket closed", applogger.Error(err))
	}
	return nil
}
