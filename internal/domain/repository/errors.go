package repository

import "errors"

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrNoChartData        = errors.New("no chart data")
	ErrProviderFailure    = errors.New("chart provider failure")
	ErrSyncInFlight       = errors.New("chart sync already in flight")
)
