// Package coingecko implements ChartProvider on top of the CoinGecko market_chart API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ChartSync/internal/domain/models"
	"ChartSync/internal/service/ratelimit"
	xhttp "ChartSync/pkg/http"
	applogger "ChartSync/pkg/logger"
)

const limiterKey = "coingecko"

// daysByRange is the days= parameter asked for each range type.
var daysByRange = map[models.RangeType]string{
	models.RangeToday:  "1",
	models.RangeDay1:   "1",
	models.RangeWeek1:  "7",
	models.RangeWeek2:  "14",
	models.RangeMonth1: "30",
	models.RangeMonth3: "90",
	models.RangeMonth6: "180",
	models.RangeYear1:  "365",
	models.RangeYear2:  "730",
}

// Days returns the market_chart days parameter for rt.
func Days(rt models.RangeType) (string, error) {
	d, ok := daysByRange[rt]
	if !ok {
		return "", fmt.Errorf("unsupported range type %q", rt)
	}
	return d, nil
}

type Option func(*Client)

// WithAPIKey sets the key sent with every request. Pro keys are detected from the base URL.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimit throttles requests with a token bucket shared by all calls of this client.
func WithRateLimit(l *ratelimit.Limiter, capacity, refillPerSec float64) Option {
	return func(c *Client) {
		c.limiter = l
		c.capacity = capacity
		c.refill = refillPerSec
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l }
}

// Client fetches price and volume series.
type Client struct {
	http     *xhttp.Client
	baseURL  string
	apiKey   string
	limiter  *ratelimit.Limiter
	capacity float64
	refill   float64
	l        *applogger.Logger
}

func New(httpClient *xhttp.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		l:       applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marketChart struct {
	Prices       [][]decimal.Decimal `json:"prices"`
	TotalVolumes [][]decimal.Decimal `json:"total_volumes"`
}

// ChartPoints returns the series for key ascending by time. An unknown coin
// yields no points and no error.
func (c *Client) ChartPoints(ctx context.Context, key models.ChartKey) ([]models.Point, error) {
	days, err := Days(key.RangeType)
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey, c.capacity, c.refill); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body marketChart
	start := time.Now()
	err = c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.baseURL + "/coins/" + url.PathEscape(key.Instrument.UID) + "/market_chart",
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"vs_currency": {strings.ToLower(key.CurrencyCode)},
			"days":        {days},
		},
	}, &body)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			c.l.Debug("coingecko coin not found", applogger.ChartKey(key))
			return nil, nil
		}
		return nil, fmt.Errorf("coingecko market_chart %s: %w", key, err)
	}

	points, err := toPoints(body)
	if err != nil {
		return nil, fmt.Errorf("coingecko market_chart %s: %w", key, err)
	}
	c.l.Debug("coingecko chart fetched",
		applogger.ChartKey(key),
		applogger.Int("points", len(points)),
		applogger.Duration("took", time.Since(start)),
	)
	return points, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	if strings.Contains(c.baseURL, "pro-api.") {
		return map[string]string{"x-cg-pro-api-key": c.apiKey}
	}
	return map[string]string{"x-cg-demo-api-key": c.apiKey}
}

func toPoints(body marketChart) ([]models.Point, error) {
	volumes := make(map[int64]decimal.Decimal, len(body.TotalVolumes))
	for _, row := range body.TotalVolumes {
		if len(row) < 2 {
			continue
		}
		volumes[row[0].IntPart()] = row[1]
	}

	points := make([]models.Point, 0, len(body.Prices))
	for i, row := range body.Prices {
		if len(row) < 2 {
			return nil, fmt.Errorf("price row %d has %d fields", i, len(row))
		}
		ms := row[0].IntPart()
		p := models.Point{Timestamp: time.UnixMilli(ms).UTC(), Value: row[1]}
		if vol, ok := volumes[ms]; ok {
			p.Extra = map[string]decimal.Decimal{models.ExtraVolume: vol}
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}
