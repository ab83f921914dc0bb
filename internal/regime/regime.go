// Package regime classifies the current market regime (bull/neutral/bear)
// from ETH and BTC 4h EMA-200 trend, subject to a macro gate that forces
// "neutral" when funding or volatility is extreme.
package regime

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"signalrelay/internal/venue"

	"github.com/rs/zerolog/log"
)

// emaLen4h is the EMA period applied to 4h candles.
const emaLen4h = 200

// OHLCVSource fetches candles for a symbol; implemented by *venue.Client.
type OHLCVSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]venue.Candle, error)
}

// FundingSource fetches the current funding rate for a symbol; implemented
// by *venue.Client.
type FundingSource interface {
	FetchFundingRate(ctx context.Context, symbol string) (float64, error)
}

// Meta carries the diagnostic fields behind a regime classification.
type Meta struct {
	Base     string
	ETHPrice float64
	BTCPrice float64
	ETHEMA   float64
	BTCEMA   float64
	Funding  float64
	HasFunding bool
	VIX      float64
	HasVIX   bool
	Gated    bool
	Reason   string
}

// Classifier computes the current regime.
type Classifier struct {
	ohlcv   OHLCVSource
	funding FundingSource
	httpc   *http.Client

	ethSymbol, btcSymbol string
	fundingSymbol        string
	fundingAbsMax        float64
	vixURL               string
	vixMax               float64
}

// New builds a Classifier. vixURL may be empty, in which case the VIX gate
// is skipped entirely.
func New(ohlcv OHLCVSource, funding FundingSource, ethSymbol, btcSymbol, fundingSymbol string, fundingAbsMax float64, vixURL string, vixMax float64) *Classifier {
	return &Classifier{
		ohlcv:         ohlcv,
		funding:       funding,
		httpc:         &http.Client{Timeout: 3 * time.Second},
		ethSymbol:     ethSymbol,
		btcSymbol:     btcSymbol,
		fundingSymbol: fundingSymbol,
		fundingAbsMax: fundingAbsMax,
		vixURL:        vixURL,
		vixMax:        vixMax,
	}
}

// emaFromCloses computes the EMA over closes using the standard smoothing
// factor alpha = 2/(length+1), seeded with the first close.
func emaFromCloses(closes []float64, length int) (float64, bool) {
	if len(closes) < 2 {
		return 0, false
	}
	alpha := 2.0 / float64(length+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = alpha*c + (1-alpha)*ema
	}
	return ema, true
}

// Classify fetches ETH/BTC 4h candles and the ETH funding rate and VIX
// level, then resolves the final regime: "bull", "bear", or "neutral".
// A gate on funding or VIX forces "neutral" regardless of the underlying
// trend. Any individual data-source failure degrades gracefully rather
// than failing the whole classification.
func (c *Classifier) Classify(ctx context.Context) (string, Meta) {
	var meta Meta

	ethPx, ethEma, ok := c.trendFor(ctx, c.ethSymbol)
	if ok {
		meta.ETHPrice, meta.ETHEMA = ethPx, ethEma
	}
	btcPx, btcEma, btcOk := c.trendFor(ctx, c.btcSymbol)
	if btcOk {
		meta.BTCPrice, meta.BTCEMA = btcPx, btcEma
	}

	meta.Base = "neutral"
	if ok && btcOk {
		if ethPx > ethEma && btcPx > btcEma {
			meta.Base = "bull"
		} else if ethPx < ethEma && btcPx < btcEma {
			meta.Base = "bear"
		}
	}

	if fr, err := c.funding.FetchFundingRate(ctx, c.fundingSymbol); err == nil {
		meta.Funding, meta.HasFunding = fr, true
	} else {
		log.Warn().Err(err).Str("symbol", c.fundingSymbol).Msg("regime funding fetch failed")
	}

	if vix, ok := c.fetchVIX(ctx); ok {
		meta.VIX, meta.HasVIX = vix, true
	}

	if meta.HasFunding && math.Abs(meta.Funding) > c.fundingAbsMax {
		meta.Gated = true
		meta.Reason = "funding_abs_exceeded"
	}
	if !meta.Gated && meta.HasVIX && meta.VIX > c.vixMax {
		meta.Gated = true
		meta.Reason = "vix_exceeded"
	}

	final := meta.Base
	if meta.Gated {
		final = "neutral"
	}
	return final, meta
}

func (c *Classifier) trendFor(ctx context.Context, symbol string) (price, ema float64, ok bool) {
	candles, err := c.ohlcv.FetchOHLCV(ctx, symbol, "4h", emaLen4h)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("regime ohlcv fetch failed")
		return 0, 0, false
	}
	if len(candles) < emaLen4h {
		return 0, 0, false
	}
	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}
	e, ok := emaFromCloses(closes, emaLen4h)
	if !ok {
		return 0, 0, false
	}
	return closes[len(closes)-1], e, true
}

// fetchVIX fetches the configured macro volatility index with a 3s
// timeout; any failure (missing URL, transport error, bad payload)
// silently disables the VIX gate rather than blocking classification.
func (c *Classifier) fetchVIX(ctx context.Context) (float64, bool) {
	if !isHTTPURL(c.vixURL) {
		return 0, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vixURL, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false
	}

	var payload map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false
	}
	n, ok := payload["vix"]
	if !ok {
		n, ok = payload["value"]
	}
	if !ok {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
