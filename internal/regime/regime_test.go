package regime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"signalrelay/internal/venue"
)

type fakeOHLCV struct {
	bySymbol map[string][]venue.Candle
	err      error
}

func (f fakeOHLCV) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]venue.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bySymbol[symbol], nil
}

type fakeFunding struct {
	rate float64
	err  error
}

func (f fakeFunding) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	return f.rate, f.err
}

// trendingCandles builds n candles climbing (or falling) steadily
// so the final close sits clearly above (or below) its own EMA.
func trendingCandles(start, step float64, n int) []venue.Candle {
	candles := make([]venue.Candle, n)
	px := start
	for i := range candles {
		candles[i] = venue.Candle{Close: px}
		px += step
	}
	return candles
}

func TestClassify_BullWhenBothTrendUp(t *testing.T) {
	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(1000, 1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(20000, 10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.0001}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	got, meta := c.Classify(context.Background())
	if got != "bull" {
		t.Errorf("got %q, want bull (meta=%+v)", got, meta)
	}
}

func TestClassify_BearWhenBothTrendDown(t *testing.T) {
	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(2000, -1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(40000, -10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.0001}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	got, _ := c.Classify(context.Background())
	if got != "bear" {
		t.Errorf("got %q, want bear", got)
	}
}

func TestClassify_NeutralWhenTrendsDisagree(t *testing.T) {
	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(1000, 1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(40000, -10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.0001}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	got, _ := c.Classify(context.Background())
	if got != "neutral" {
		t.Errorf("got %q, want neutral", got)
	}
}

func TestClassify_FundingGateForcesNeutral(t *testing.T) {
	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(1000, 1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(20000, 10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.01} // far beyond 0.0003 max

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	got, meta := c.Classify(context.Background())
	if got != "neutral" {
		t.Errorf("got %q, want neutral when gated", got)
	}
	if meta.Base != "bull" {
		t.Errorf("expected underlying base regime to still read bull, got %q", meta.Base)
	}
	if !meta.Gated || meta.Reason != "funding_abs_exceeded" {
		t.Errorf("expected funding gate to fire, got %+v", meta)
	}
}

func TestClassify_VixGateForcesNeutral(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"vix": 45})
	}))
	defer server.Close()

	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(1000, 1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(20000, 10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.0001}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, server.URL, 30)
	got, meta := c.Classify(context.Background())
	if got != "neutral" {
		t.Errorf("got %q, want neutral when VIX gate fires", got)
	}
	if meta.Reason != "vix_exceeded" {
		t.Errorf("expected vix_exceeded reason, got %+v", meta)
	}
}

func TestClassify_MissingOHLCVDataDegradesToNeutralBase(t *testing.T) {
	ohlcv := fakeOHLCV{err: errors.New("network down")}
	funding := fakeFunding{err: errors.New("funding unavailable")}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	got, meta := c.Classify(context.Background())
	if got != "neutral" {
		t.Errorf("got %q, want neutral on total data outage", got)
	}
	if meta.HasFunding {
		t.Errorf("expected HasFunding=false on fetch error")
	}
}

func TestClassify_EmptyVixURLSkipsGate(t *testing.T) {
	ohlcv := fakeOHLCV{bySymbol: map[string][]venue.Candle{
		"ETH/USDT:USDT": trendingCandles(1000, 1, emaLen4h),
		"BTC/USDT:USDT": trendingCandles(20000, 10, emaLen4h),
	}}
	funding := fakeFunding{rate: 0.0001}

	c := New(ohlcv, funding, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", 0.0003, "", 30)
	_, meta := c.Classify(context.Background())
	if meta.HasVIX {
		t.Errorf("expected HasVIX=false when no VIX URL configured")
	}
}

func TestEmaFromCloses_TooFewPointsReturnsFalse(t *testing.T) {
	if _, ok := emaFromCloses([]float64{1.0}, 200); ok {
		t.Error("expected ok=false for fewer than 2 closes")
	}
}

func TestIsHTTPURL(t *testing.T) {
	cases := map[string]bool{
		"http://x.com":  true,
		"https://x.com": true,
		"ftp://x.com":   false,
		"":              false,
		"  HTTPS://X  ": true,
	}
	for in, want := range cases {
		if got := isHTTPURL(in); got != want {
			t.Errorf("isHTTPURL(%q) = %v, want %v", in, got, want)
		}
	}
}
