// Package datahandler provides the market data sources that drive a backtest.
// A DataHandler yields tick events in simulation-time order; the portfolio
// never reads data files itself.
package datahandler

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"options-backtester/internal/errors"
	"options-backtester/internal/events"
	"options-backtester/internal/models"
)

// DataHandler yields quote-chain ticks in timestamp order.
type DataHandler interface {
	// HasNext reports whether another tick is available.
	HasNext() bool
	// Next returns the next tick event.
	Next() (*events.TickEvent, error)
}

// chainRecord is one CSV row of an option chain. Currency columns are parsed
// as strings and converted to exact decimals; Greeks are floats.
type chainRecord struct {
	Underlying      string  `csv:"underlying"`
	UnderlyingPrice string  `csv:"underlying_price"`
	Strike          string  `csv:"strike"`
	Right           string  `csv:"right"`
	Delta           float64 `csv:"delta"`
	Gamma           float64 `csv:"gamma"`
	Theta           float64 `csv:"theta"`
	Vega            float64 `csv:"vega"`
	QuoteDate       string  `csv:"quote_date"`
	Expiration      string  `csv:"expiration"`
	Bid             string  `csv:"bid"`
	Ask             string  `csv:"ask"`
	Trade           string  `csv:"trade"`
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// CSVHandler reads an option-chain CSV file and yields one tick event per
// distinct quote date, in ascending order.
type CSVHandler struct {
	ticks []*events.TickEvent
	pos   int
}

// NewCSVHandler loads and parses the chain file up front. Parse failures are
// reported with the row's underlying and quote date.
func NewCSVHandler(path string) (*CSVHandler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataError("chain", path, "opening file", err)
	}
	defer f.Close()

	var records []*chainRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, errors.NewDataError("chain", path, "parsing csv", err)
	}
	if len(records) == 0 {
		return nil, errors.NewDataError("chain", path, "empty chain", errors.ErrNoQuoteData)
	}

	byDate := make(map[time.Time][]models.Leg)
	for i, rec := range records {
		leg, err := rec.toLeg()
		if err != nil {
			return nil, errors.NewDataError("chain", path, fmt.Sprintf("row %d", i+1), err)
		}
		byDate[leg.DateTime] = append(byDate[leg.DateTime], leg)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	h := &CSVHandler{ticks: make([]*events.TickEvent, 0, len(dates))}
	for _, d := range dates {
		h.ticks = append(h.ticks, events.NewTickEvent(byDate[d]))
	}
	return h, nil
}

// HasNext reports whether another tick is available.
func (h *CSVHandler) HasNext() bool {
	return h.pos < len(h.ticks)
}

// Next returns the next tick event.
func (h *CSVHandler) Next() (*events.TickEvent, error) {
	if !h.HasNext() {
		return nil, errors.ErrDataNotFound
	}
	tick := h.ticks[h.pos]
	h.pos++
	return tick, nil
}

// TickCount returns the number of ticks loaded.
func (h *CSVHandler) TickCount() int {
	return len(h.ticks)
}

func (r *chainRecord) toLeg() (models.Leg, error) {
	var leg models.Leg

	switch r.Right {
	case "CALL", "C":
		leg.Right = models.RightCall
	case "PUT", "P":
		leg.Right = models.RightPut
	default:
		return leg, fmt.Errorf("unknown option right %q", r.Right)
	}

	underlyingPrice, err := decimal.NewFromString(r.UnderlyingPrice)
	if err != nil {
		return leg, fmt.Errorf("underlying price %q: %w", r.UnderlyingPrice, err)
	}
	strike, err := decimal.NewFromString(r.Strike)
	if err != nil {
		return leg, fmt.Errorf("strike %q: %w", r.Strike, err)
	}
	bid, err := decimal.NewFromString(r.Bid)
	if err != nil {
		return leg, fmt.Errorf("bid %q: %w", r.Bid, err)
	}
	ask, err := decimal.NewFromString(r.Ask)
	if err != nil {
		return leg, fmt.Errorf("ask %q: %w", r.Ask, err)
	}
	trade, err := decimal.NewFromString(r.Trade)
	if err != nil {
		return leg, fmt.Errorf("trade %q: %w", r.Trade, err)
	}

	quoteDate, err := parseDate(r.QuoteDate)
	if err != nil {
		return leg, fmt.Errorf("quote date %q: %w", r.QuoteDate, err)
	}
	expiration, err := parseDate(r.Expiration)
	if err != nil {
		return leg, fmt.Errorf("expiration %q: %w", r.Expiration, err)
	}

	leg.UnderlyingTicker = r.Underlying
	leg.UnderlyingPrice = underlyingPrice
	leg.StrikePrice = strike
	leg.Delta = r.Delta
	leg.Gamma = r.Gamma
	leg.Theta = r.Theta
	leg.Vega = r.Vega
	leg.DateTime = quoteDate
	leg.ExpirationDateTime = expiration
	leg.BidPrice = bid
	leg.AskPrice = ask
	leg.TradePrice = trade
	return leg, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}
