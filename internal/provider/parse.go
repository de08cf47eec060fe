package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvik/alphafeed/internal/model"
)

// dailySeriesPayload mirrors the provider's TIME_SERIES_DAILY_ADJUSTED shape.
type dailySeriesPayload struct {
	MetaData struct {
		Symbol string `json:"2. Symbol"`
	} `json:"Meta Data"`
	Series map[string]struct {
		Open     string `json:"1. open"`
		High     string `json:"2. high"`
		Low      string `json:"3. low"`
		AdjClose string `json:"5. adjusted close"`
		Volume   string `json:"6. volume"`
	} `json:"Time Series (Daily)"`
}

// ParseDailySeries decodes a daily-series payload into quotes, newest first.
func ParseDailySeries(body []byte) ([]model.DailyQuote, error) {
	var payload dailySeriesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal daily series: %w", err)
	}
	if payload.MetaData.Symbol == "" || payload.Series == nil {
		return nil, fmt.Errorf("daily series payload missing series data")
	}

	quotes := make([]model.DailyQuote, 0, len(payload.Series))
	for date, bar := range payload.Series {
		day, err := model.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("daily series date %q: %w", date, err)
		}

		q := model.DailyQuote{Symbol: payload.MetaData.Symbol, Day: day}
		if q.Open, err = decimal.NewFromString(bar.Open); err != nil {
			return nil, fmt.Errorf("daily series open for %s: %w", date, err)
		}
		if q.High, err = decimal.NewFromString(bar.High); err != nil {
			return nil, fmt.Errorf("daily series high for %s: %w", date, err)
		}
		if q.Low, err = decimal.NewFromString(bar.Low); err != nil {
			return nil, fmt.Errorf("daily series low for %s: %w", date, err)
		}
		if q.Close, err = decimal.NewFromString(bar.AdjClose); err != nil {
			return nil, fmt.Errorf("daily series close for %s: %w", date, err)
		}
		if q.Volume, err = strconv.ParseInt(bar.Volume, 10, 64); err != nil {
			return nil, fmt.Errorf("daily series volume for %s: %w", date, err)
		}
		quotes = append(quotes, q)
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Day.After(quotes[j].Day) })
	return quotes, nil
}

// globalQuotePayload mirrors the provider's GLOBAL_QUOTE shape.
type globalQuotePayload struct {
	Quote struct {
		Symbol    string `json:"01. symbol"`
		Open      string `json:"02. open"`
		High      string `json:"03. high"`
		Low       string `json:"04. low"`
		Price     string `json:"05. price"`
		Volume    string `json:"06. volume"`
		LatestDay string `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

// ParseGlobalQuote decodes a realtime quote payload into a single quote.
// Price and latest trading day are required; a payload without them cannot
// yield a date-keyed quote.
func ParseGlobalQuote(body []byte) (model.DailyQuote, error) {
	var payload globalQuotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.DailyQuote{}, fmt.Errorf("unmarshal global quote: %w", err)
	}
	if payload.Quote.Price == "" {
		return model.DailyQuote{}, fmt.Errorf("global quote payload missing price")
	}
	if payload.Quote.LatestDay == "" {
		return model.DailyQuote{}, fmt.Errorf("global quote payload missing latest trading day")
	}

	q := model.DailyQuote{Symbol: payload.Quote.Symbol}

	var err error
	if q.Close, err = decimal.NewFromString(payload.Quote.Price); err != nil {
		return model.DailyQuote{}, fmt.Errorf("global quote price: %w", err)
	}
	if q.Day, err = model.ParseDay(payload.Quote.LatestDay); err != nil {
		return model.DailyQuote{}, fmt.Errorf("global quote trading day: %w", err)
	}
	// Open/high/low/volume are optional on the realtime entitlement.
	if payload.Quote.Open != "" {
		if q.Open, err = decimal.NewFromString(payload.Quote.Open); err != nil {
			return model.DailyQuote{}, fmt.Errorf("global quote open: %w", err)
		}
	}
	if payload.Quote.High != "" {
		if q.High, err = decimal.NewFromString(payload.Quote.High); err != nil {
			return model.DailyQuote{}, fmt.Errorf("global quote high: %w", err)
		}
	}
	if payload.Quote.Low != "" {
		if q.Low, err = decimal.NewFromString(payload.Quote.Low); err != nil {
			return model.DailyQuote{}, fmt.Errorf("global quote low: %w", err)
		}
	}
	if payload.Quote.Volume != "" {
		if q.Volume, err = strconv.ParseInt(payload.Quote.Volume, 10, 64); err != nil {
			return model.DailyQuote{}, fmt.Errorf("global quote volume: %w", err)
		}
	}

	return q, nil
}

// optionsPayload mirrors the provider's HISTORICAL_OPTIONS / REALTIME_OPTIONS shape.
type optionsPayload struct {
	Endpoint string      `json:"endpoint"`
	Message  string      `json:"message"`
	Data     []optionLeg `json:"data"`
}

type optionLeg struct {
	ContractID string `json:"contractID"`
	Symbol     string `json:"symbol"`
	Expiration string `json:"expiration"`
	Strike     string `json:"strike"`
	Type       string `json:"type"`
	Last       string `json:"last"`
	Mark       string `json:"mark"`
	Bid        string `json:"bid"`
	BidSize    string `json:"bid_size"`
	Ask        string `json:"ask"`
	AskSize    string `json:"ask_size"`
	Volume     string `json:"volume"`
	OpenInt    string `json:"open_interest"`
	Date       string `json:"date"`
	ImpliedVol string `json:"implied_volatility"`
}

// ParseOptionsChain decodes an options payload into a chain for symbol. When
// requested is non-zero and the payload's date differs, it returns a
// *DataMismatchError: historical chains for a settled date are immutable, so a
// different date means the provider answered the wrong question.
func ParseOptionsChain(body []byte, symbol string, requested time.Time) (model.OptionChain, error) {
	var payload optionsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.OptionChain{}, fmt.Errorf("unmarshal options chain: %w", err)
	}

	chain := model.OptionChain{Symbol: symbol, Day: model.Day(requested)}
	if len(payload.Data) == 0 {
		return chain, nil
	}

	day, err := model.ParseDay(payload.Data[0].Date)
	if err != nil {
		return model.OptionChain{}, fmt.Errorf("options chain date %q: %w", payload.Data[0].Date, err)
	}
	if !requested.IsZero() && !day.Equal(model.Day(requested)) {
		return model.OptionChain{}, &DataMismatchError{
			Requested: model.Day(requested).Format(model.ISODate),
			Got:       day.Format(model.ISODate),
		}
	}
	chain.Day = day

	legs := make([]model.OptionQuote, 0, len(payload.Data))
	for _, raw := range payload.Data {
		leg, err := raw.toModel(symbol, day)
		if err != nil {
			return model.OptionChain{}, err
		}
		legs = append(legs, leg)
	}

	chain.Puts, chain.Calls = model.SplitLegs(legs)
	return chain, nil
}

func (raw optionLeg) toModel(symbol string, day time.Time) (model.OptionQuote, error) {
	leg := model.OptionQuote{
		ContractID: raw.ContractID,
		Symbol:     symbol,
		Day:        day,
	}

	switch raw.Type {
	case "put":
		leg.Side = model.SidePut
	case "call":
		leg.Side = model.SideCall
	default:
		return model.OptionQuote{}, fmt.Errorf("option %s: unknown type %q", raw.ContractID, raw.Type)
	}

	var err error
	if leg.Expiration, err = model.ParseDay(raw.Expiration); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s expiration: %w", raw.ContractID, err)
	}
	if leg.Strike, err = decimal.NewFromString(raw.Strike); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s strike: %w", raw.ContractID, err)
	}
	if leg.Last, err = decimal.NewFromString(raw.Last); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s last: %w", raw.ContractID, err)
	}
	if leg.Mark, err = decimal.NewFromString(raw.Mark); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s mark: %w", raw.ContractID, err)
	}
	if leg.Bid, err = decimal.NewFromString(raw.Bid); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s bid: %w", raw.ContractID, err)
	}
	if leg.Ask, err = decimal.NewFromString(raw.Ask); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s ask: %w", raw.ContractID, err)
	}
	if leg.ImpliedVol, err = decimal.NewFromString(raw.ImpliedVol); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s implied volatility: %w", raw.ContractID, err)
	}
	if leg.BidSize, err = strconv.Atoi(raw.BidSize); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s bid size: %w", raw.ContractID, err)
	}
	if leg.AskSize, err = strconv.Atoi(raw.AskSize); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s ask size: %w", raw.ContractID, err)
	}
	if leg.Volume, err = strconv.Atoi(raw.Volume); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s volume: %w", raw.ContractID, err)
	}
	if leg.OpenInt, err = strconv.Atoi(raw.OpenInt); err != nil {
		return model.OptionQuote{}, fmt.Errorf("option %s open interest: %w", raw.ContractID, err)
	}

	return leg, nil
}
