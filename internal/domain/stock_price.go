package domain

import "time"

// StockPrice is one raw daily record of the stock price panel.
// Corresponds to stock_prices table in PostgreSQL.
type StockPrice struct {
	RowID            string    // "<yyyymmdd>_<code>"
	Date             time.Time // trading date (UTC midnight)
	SecuritiesCode   string    // exchange security code
	Open             float64   // raw open
	High             float64   // raw high
	Low              float64   // raw low
	Close            float64   // raw close
	Volume           float64   // shares traded
	AdjustmentFactor float64   // split/reverse-split factor recorded for the date (1 = none)
	ExpectedDividend *float64  // nullable
	SupervisionFlag  bool      // under supervision / to be delisted
	Target           *float64  // competition target: change ratio of adjusted close (nullable)
}

// AdjustedPricePoint is one day of a security's adjusted OHLCV series.
// Corresponds to adjusted_prices table in ClickHouse.
type AdjustedPricePoint struct {
	SecuritiesCode string    // exchange security code
	Date           time.Time // canonical panel date
	Open           float64   // adjusted open
	High           float64   // adjusted high
	Low            float64   // adjusted low
	Close          float64   // adjusted close
	Volume         float64   // adjusted volume
	PriceFactor    float64   // cumulative price adjustment applied on this date
}
