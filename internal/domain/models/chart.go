package models

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// ExtraVolume is the Point.Extra field carrying traded volume.
const ExtraVolume = "volume"

// Instrument is the canonical record an instrument id resolves to.
type Instrument struct {
	UID  string `yaml:"uid" json:"uid"`
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// ChartKey addresses one cached series. It is comparable and safe to use as a map key.
type ChartKey struct {
	Instrument   Instrument
	CurrencyCode string
	RangeType    RangeType
}

// String renders the key as uid:currency:range.
func (k ChartKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Instrument.UID, k.CurrencyCode, k.RangeType)
}

// Point is a single timestamped value of a chart.
type Point struct {
	Timestamp time.Time
	Value     decimal.Decimal
	Extra     map[string]decimal.Decimal
}

// Volume returns the volume extra, if present.
func (p Point) Volume() (decimal.Decimal, bool) {
	v, ok := p.Extra[ExtraVolume]
	return v, ok
}

// Clone returns p with its own copy of Extra.
func (p Point) Clone() Point {
	p.Extra = maps.Clone(p.Extra)
	return p
}

// ChartInfo is a servable view over stored or fetched points.
type ChartInfo struct {
	Points         []Point
	StartTimestamp time.Time
	EndTimestamp   time.Time
	Expired        bool
}

// LastPoint returns the most recent point of the chart.
func (c ChartInfo) LastPoint() (Point, bool) {
	if len(c.Points) == 0 {
		return Point{}, false
	}
	return c.Points[len(c.Points)-1], true
}
