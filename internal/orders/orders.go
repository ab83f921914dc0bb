// Package orders classifies inbound signals into exit/entry/target actions
// and drives them to completion against the venue: sizing, the edge filter,
// order placement, fixed-interval polling to a terminal status, and the
// PnL/state bookkeeping that follows a close.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"signalrelay/internal/journal"
	"signalrelay/internal/models"
	"signalrelay/internal/pnl"
	"signalrelay/internal/relayerr"
	"signalrelay/internal/riskgate"
	"signalrelay/internal/sizing"
	"signalrelay/internal/state"
	"signalrelay/internal/venue"
)

// Action is the classification of an inbound signal.
type Action string

const (
	ActionExit    Action = "exit"
	ActionEntry   Action = "entry"
	ActionTarget  Action = "target"
	ActionUnknown Action = "unknown"
)

// Classify determines whether sig is an exit, an entry (delta), a target
// (reconcile), or unrecognized. Exit takes priority over the other two.
func Classify(sig *models.Signal) Action {
	if isExitSignal(sig) {
		return ActionExit
	}
	if sig.HasDelta() {
		return ActionEntry
	}
	if sig.HasTarget() {
		return ActionTarget
	}
	return ActionUnknown
}

func isExitSignal(sig *models.Signal) bool {
	if sig.MarketPosition == "flat" {
		return true
	}
	if strings.Contains(sig.ID, "EXIT") {
		return true
	}
	switch sig.PrevMarketPosition {
	case "long":
		if sig.Side == "sell" {
			return true
		}
	case "short":
		if sig.Side == "buy" {
			return true
		}
	}
	return false
}

// VenueClient is the subset of *venue.Client the order engine drives.
type VenueClient interface {
	FetchPositions(ctx context.Context, symbol string) ([]venue.Position, error)
	CreateOrder(ctx context.Context, req venue.OrderRequest) (venue.Order, error)
	FetchOrder(ctx context.Context, symbol, orderID string) (venue.Order, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// Params bundles everything an engine call needs beyond the venue client
// itself: the resolved settings, market constraints, and current prices.
type Params struct {
	Symbol          string
	Market          venue.MarketInfo
	Equity          float64
	LivePrice       float64 // mark or last, per UseMarkPrice
	RefPrice        float64 // signal's reference price, if provided
	Regime          string
	Strategy        string
	PositionMode    string // "oneway" | "hedge"
	TakerFee        float64
	MaxSlippage     float64
	FeeBuffer       float64
	MarginBuffer    float64
	AllocPct        float64
	Leverage        int
	SizingMode      sizing.Mode
	RiskPct         float64
	FixedAmount     *float64
	AssumeHoldHours float64
	EdgeEnabled     bool
	EdgeRequireTP   bool
	EdgeAllowDeriveTP bool
	EdgeATRTPMultiple float64
	MinEdgeUSDT     float64
	ReconcileRetries  int
	ReconcileInterval time.Duration
	StreakLimits    pnl.StreakLimits
}

// Engine executes signals against the venue.
type Engine struct {
	venue   VenueClient
	state   *state.Store
	journal *journal.Store
	sleep   func(time.Duration)
}

// New builds an Engine. journal may be nil to disable audit logging.
func New(v VenueClient, st *state.Store, j *journal.Store) *Engine {
	return &Engine{venue: v, state: st, journal: j, sleep: time.Sleep}
}

// terminalStatuses are the order states that stop polling, keyed
// case-insensitively since the venue returns mixed-case status strings.
var terminalStatuses = map[string]bool{
	"closed":    true,
	"canceled":  true,
	"cancelled": true,
	"filled":    true,
	"rejected":  true,
}

func isTerminalStatus(status string) bool {
	return terminalStatuses[strings.ToLower(status)]
}

// pollToTerminal polls FetchOrder at a fixed interval until a terminal
// status is observed or the retry budget is exhausted. Transport errors
// during a poll are swallowed; the loop just continues. The last
// successfully observed order is always returned, even if it never reached
// a terminal status.
func (e *Engine) pollToTerminal(ctx context.Context, symbol, orderID string, retries int, interval time.Duration) venue.Order {
	var last venue.Order
	for i := 0; i < retries; i++ {
		ord, err := e.venue.FetchOrder(ctx, symbol, orderID)
		if err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("order poll transport error, continuing")
		} else {
			last = ord
			if isTerminalStatus(ord.Status) {
				return last
			}
		}
		if i < retries-1 {
			e.sleep(interval)
		}
	}
	return last
}

// posSide resolves the hedge-mode direction tag for an order. Entries
// buy→Long / sell→Short; reduce-only orders invert that mapping, since a
// reduce-only sell closes a Long and a reduce-only buy closes a Short.
func posSide(mode, side string, reduceOnly bool) string {
	if mode != "hedge" {
		return ""
	}
	isSell := side == "sell" || side == "short"
	if reduceOnly {
		isSell = !isSell
	}
	if isSell {
		return "Short"
	}
	return "Long"
}

func (e *Engine) appendJournal(symbol string, req venue.OrderRequest, resp venue.Order, final venue.Order) {
	if e.journal == nil {
		return
	}
	rec := journal.Record{}
	if b, err := marshalAny(req); err == nil {
		rec.Request = b
	}
	if b, err := marshalAny(resp); err == nil {
		rec.RawResponse = b
	}
	if b, err := marshalAny(final); err == nil {
		rec.FinalStatus = b
	}
	if err := e.journal.Append(symbol, time.Time{}, rec); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to append order journal record")
	}
}

// ErrNoOpenPosition signals an exit/reduce request with nothing to close.
var ErrNoOpenPosition = errors.New("no open position to act on")

// ExitResult carries the outcome of a completed exit.
type ExitResult struct {
	Order    venue.Order
	Realized float64
	Daily    state.DailyPnL
}

// Exit closes all or part of the current position per qtyPct/amount/full,
// polls to terminal, computes realized PnL against the open-entry snapshot,
// and settles streak/cooldown/daily PnL.
func (e *Engine) Exit(ctx context.Context, p Params, sig *models.Signal) (ExitResult, error) {
	positions, err := e.venue.FetchPositions(ctx, p.Symbol)
	if err != nil {
		return ExitResult{}, err
	}
	if len(positions) == 0 || positions[0].Size == 0 {
		return ExitResult{}, ErrNoOpenPosition
	}
	pos := positions[0]

	exitQty := pos.Size
	if sig.QtyPct != nil && *sig.QtyPct >= 1 && *sig.QtyPct <= 100 {
		exitQty = pos.Size * (*sig.QtyPct / 100)
	} else if amt, ok := sig.ResolvedQty(); ok {
		if amt < exitQty {
			exitQty = amt
		}
	}
	exitQty = venue.RoundStep(exitQty, p.Market.AmountStep)

	execSide := "sell"
	if pos.Side == "short" {
		execSide = "buy"
	}

	req := venue.OrderRequest{
		Symbol:     p.Symbol,
		Side:       execSide,
		Type:       "market",
		Qty:        exitQty,
		ReduceOnly: true,
		PosSide:    posSide(p.PositionMode, execSide, true),
	}
	placed, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		return ExitResult{}, err
	}

	final := e.pollToTerminal(ctx, p.Symbol, placed.ID, p.ReconcileRetries, p.ReconcileInterval)
	e.appendJournal(p.Symbol, req, placed, final)

	entry, hadEntry, err := e.state.OpenEntryPop(ctx, p.Strategy)
	if err != nil {
		return ExitResult{}, err
	}

	var result ExitResult
	result.Order = final
	if hadEntry && final.AvgFillPrice > 0 {
		realized := pnl.Realized(entry.Side, entry.Entry, final.AvgFillPrice, entry.Amount, p.TakerFee)
		daily, err := pnl.Settle(ctx, e.state, p.Strategy, p.StreakLimits, realized)
		if err != nil {
			return result, err
		}
		result.Realized = realized
		result.Daily = daily
	}
	return result, nil
}

// EntryResult carries the outcome of a completed entry.
type EntryResult struct {
	Order  venue.Order
	Amount float64
}

// Entry resolves a sized amount, applies the edge filter, optionally sets
// leverage, places a market (or slippage-guarded limit-IOC) order, polls to
// terminal, and persists the open-entry snapshot on a successful fill.
func (e *Engine) Entry(ctx context.Context, p Params, sig *models.Signal, comment models.Comment) (EntryResult, error) {
	sign := 1.0
	if sig.Side == "sell" || sig.Side == "short" {
		sign = -1.0
	}

	amount, err := e.resolveAmount(p, sig, comment)
	if err != nil {
		return EntryResult{}, err
	}

	entryPx := p.LivePrice
	if comment.Entry != nil {
		entryPx = *comment.Entry
	}

	if p.EdgeEnabled {
		edgeIn := riskgate.EdgeInput{
			Entry: entryPx, Amount: amount, SideSign: sign,
			TakerFee: p.TakerFee, FundingRate: 0, AssumeHoldHours: p.AssumeHoldHours,
			TP: comment.TP, ATR: comment.ATR,
			AllowDeriveTP: p.EdgeAllowDeriveTP, ATRTPMultiple: p.EdgeATRTPMultiple,
		}
		if _, err := riskgate.CheckEdge(edgeIn, true, p.EdgeRequireTP, p.MinEdgeUSDT); err != nil {
			return EntryResult{}, relayerr.New(relayerr.KindGatedEdge, err)
		}
	}

	if p.Leverage > 0 {
		if err := e.venue.SetLeverage(ctx, p.Symbol, p.Leverage); err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("best-effort leverage set failed")
		}
	}

	req := venue.OrderRequest{
		Symbol: p.Symbol,
		Side:   sig.Side,
		Type:   "market",
		Qty:    amount,
		PosSide: posSide(p.PositionMode, sig.Side, false),
	}

	slip := riskgate.CheckSlippage(p.LivePrice, p.RefPrice, p.MaxSlippage, sig.Side)
	if slip.Exceeded {
		req.Type = "limit"
		req.TimeInForce = "ioc"
		req.Price = slip.LimitPrice
	}

	placed, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		return EntryResult{}, err
	}

	final := e.pollToTerminal(ctx, p.Symbol, placed.ID, p.ReconcileRetries, p.ReconcileInterval)
	e.appendJournal(p.Symbol, req, placed, final)

	if final.AvgFillPrice > 0 {
		snapshot := state.OpenEntry{Strategy: p.Strategy, Side: sig.Side, Entry: final.AvgFillPrice, Amount: amount}
		if err := e.state.OpenEntrySave(ctx, p.Strategy, snapshot); err != nil {
			return EntryResult{Order: final, Amount: amount}, err
		}
	}

	return EntryResult{Order: final, Amount: amount}, nil
}

func (e *Engine) resolveAmount(p Params, sig *models.Signal, comment models.Comment) (float64, error) {
	if amt, ok := sig.ResolvedQty(); ok {
		return venue.RoundStep(amt, p.Market.AmountStep), nil
	}

	in := sizing.Input{
		Mode: p.SizingMode, Equity: p.Equity, Price: p.LivePrice,
		RiskPct: p.RiskPct, SL: comment.SL,
		AllocPct: p.AllocPct, Leverage: p.Leverage,
		FixedAmount:  p.FixedAmount,
		MarginBuffer: p.MarginBuffer, FeeBuffer: p.FeeBuffer,
		Market: p.Market,
	}
	res, err := sizing.Resolve(in)
	if err != nil {
		return 0, relayerr.New(relayerr.KindSizingConstraint, err)
	}
	return res.Amount, nil
}

// Reconcile drives the current position toward (wantSide, wantSize) per the
// target-signal state machine: close if want is flat, adjust by delta when
// on the same side, or close-then-reopen when switching sides.
func (e *Engine) Reconcile(ctx context.Context, p Params, sig *models.Signal) (venue.Order, error) {
	positions, err := e.venue.FetchPositions(ctx, p.Symbol)
	if err != nil {
		return venue.Order{}, err
	}

	var curSide string
	var curQty float64
	if len(positions) > 0 {
		curSide, curQty = positions[0].Side, positions[0].Size
	}

	wantSide := sig.MarketPosition
	wantSize := 0.0
	if sig.MarketPositionSize != nil {
		wantSize = *sig.MarketPositionSize
	}

	if wantSide == "flat" || wantSize == 0 {
		if curQty == 0 {
			return venue.Order{}, nil
		}
		return e.closeReduceOnly(ctx, p, curSide, curQty)
	}

	if curQty == 0 {
		return e.openFresh(ctx, p, wantSide, wantSize)
	}

	if curSide == wantSide {
		delta := wantSize - curQty
		if delta == 0 {
			return venue.Order{}, nil
		}
		if delta > 0 {
			return e.openFresh(ctx, p, wantSide, delta)
		}
		return e.reduceBy(ctx, p, curSide, -delta)
	}

	if _, err := e.closeReduceOnly(ctx, p, curSide, curQty); err != nil {
		return venue.Order{}, err
	}
	return e.openFresh(ctx, p, wantSide, wantSize)
}

func (e *Engine) openFresh(ctx context.Context, p Params, side string, qty float64) (venue.Order, error) {
	execSide := "buy"
	if side == "short" {
		execSide = "sell"
	}
	qty = venue.RoundStep(qty, p.Market.AmountStep)
	req := venue.OrderRequest{
		Symbol: p.Symbol, Side: execSide, Type: "market", Qty: qty,
		PosSide: posSide(p.PositionMode, execSide, false),
	}
	placed, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		return venue.Order{}, err
	}
	final := e.pollToTerminal(ctx, p.Symbol, placed.ID, p.ReconcileRetries, p.ReconcileInterval)
	e.appendJournal(p.Symbol, req, placed, final)
	return final, nil
}

func (e *Engine) reduceBy(ctx context.Context, p Params, curSide string, qty float64) (venue.Order, error) {
	execSide := "sell"
	if curSide == "short" {
		execSide = "buy"
	}
	qty = venue.RoundStep(qty, p.Market.AmountStep)
	req := venue.OrderRequest{
		Symbol: p.Symbol, Side: execSide, Type: "market", Qty: qty, ReduceOnly: true,
		PosSide: posSide(p.PositionMode, execSide, true),
	}
	placed, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		return venue.Order{}, err
	}
	final := e.pollToTerminal(ctx, p.Symbol, placed.ID, p.ReconcileRetries, p.ReconcileInterval)
	e.appendJournal(p.Symbol, req, placed, final)
	return final, nil
}

func (e *Engine) closeReduceOnly(ctx context.Context, p Params, curSide string, qty float64) (venue.Order, error) {
	return e.reduceBy(ctx, p, curSide, qty)
}

func marshalAny(v any) ([]byte, error) {
	return json.Marshal(v)
}
