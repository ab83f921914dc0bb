// Package webhook is the single-pass orchestrator that turns an inbound
// TradingView-style signal into a venue action: auth, idempotency, gating,
// sizing, and dispatch to the order engine, with JSON-safe responses.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"signalrelay/internal/cfg"
	"signalrelay/internal/logging"
	"signalrelay/internal/metrics"
	"signalrelay/internal/models"
	"signalrelay/internal/orders"
	"signalrelay/internal/pnl"
	"signalrelay/internal/regime"
	"signalrelay/internal/relayerr"
	"signalrelay/internal/riskgate"
	"signalrelay/internal/sizing"
	"signalrelay/internal/state"
	"signalrelay/internal/symbols"
	"signalrelay/internal/venue"
)

// VenueFeed is the subset of *venue.Client the handler needs for price and
// equity discovery ahead of sizing, and for the final position snapshot
// reported back in the dispatch response.
type VenueFeed interface {
	FetchBalance(ctx context.Context, code, source string) (float64, error)
	FetchTicker(ctx context.Context, symbol string) (venue.Ticker, error)
	FetchMarketInfo(ctx context.Context, symbol string) (venue.MarketInfo, error)
	FetchPositions(ctx context.Context, symbol string) ([]venue.Position, error)
}

// RegimeClassifier resolves the current market regime.
type RegimeClassifier interface {
	Classify(ctx context.Context) (string, regime.Meta)
}

// Engine is the subset of *orders.Engine the handler dispatches to.
type Engine interface {
	Exit(ctx context.Context, p orders.Params, sig *models.Signal) (orders.ExitResult, error)
	Entry(ctx context.Context, p orders.Params, sig *models.Signal, comment models.Comment) (orders.EntryResult, error)
	Reconcile(ctx context.Context, p orders.Params, sig *models.Signal) (venue.Order, error)
}

// Handler wires the webhook contract to its collaborators.
type Handler struct {
	settings  *cfg.Settings
	state     *state.Store
	venue     VenueFeed
	regime    RegimeClassifier
	engine    Engine
	metrics   *metrics.MetricsWrapper
	startedAt time.Time
}

// New builds a Handler. metrics may be nil to disable metric emission.
func New(settings *cfg.Settings, st *state.Store, venueFeed VenueFeed, regimeClassifier RegimeClassifier, engine Engine, mw *metrics.MetricsWrapper) *Handler {
	return &Handler{settings: settings, state: st, venue: venueFeed, regime: regimeClassifier, engine: engine, metrics: mw, startedAt: time.Now()}
}

// Router builds the gorilla/mux router exposing /health, /status,
// /tv-webhook, and /metrics.
func (h *Handler) Router(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/tv-webhook", h.handleWebhook).Methods(http.MethodPost)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"uptime_s": time.Since(h.startedAt).Seconds(),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rg, meta := h.regime.Classify(ctx)

	resp := map[string]any{"regime": rg, "meta": meta}
	if equity, err := h.venue.FetchBalance(ctx, h.settings.EquityCode, h.settings.EquitySource); err == nil {
		resp["equity"] = equity
	} else {
		log.Warn().Err(err).Msg("status: equity lookup failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sig models.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
		return
	}

	// Step 1: auth, before any idempotency claim.
	if h.settings.RelaySecret != "" && sig.RelaySecret != h.settings.RelaySecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	// Step 2: log received, redacted.
	log.Info().Fields(logging.Redact(sig.ToLogFields())).Msg("signal received")
	h.metricInc(func(mw *metrics.MetricsWrapper) { mw.SignalsReceivedInc() })

	// Step 3: idempotency claim.
	if sig.ID != "" {
		claimed, err := h.state.ClaimIdempotency(ctx, sig.ID, h.settings.IdempotencyTTL)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
			return
		}
		if !claimed {
			h.metricInc(func(mw *metrics.MetricsWrapper) { mw.SignalsDuplicateInc() })
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate_ignored", "id": sig.ID})
			return
		}
	}

	release := func() {
		if sig.ID != "" {
			if err := h.state.ReleaseIdempotency(ctx, sig.ID); err != nil {
				log.Warn().Err(err).Str("id", sig.ID).Msg("failed to release idempotency claim")
			}
		}
	}

	// Step 4: parse symbol / target-delta / strategy.
	symbol, ok := symbols.Normalize(firstNonEmpty(sig.Ticker, sig.Symbol), false, h.settings.DefaultSymbol)
	if !ok {
		symbol = h.settings.DefaultSymbol
	}
	strategy := sig.ResolvedStrategy()

	// Step 5: invalid payload.
	action := orders.Classify(&sig)
	if action == orders.ActionUnknown {
		release()
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.SignalsInvalidInc() })
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_payload"})
		return
	}

	// Step 6: regime + daily-DD + cooldown gates.
	rg, regimeMeta := h.regime.Classify(ctx)

	ddBlocked, daily, err := h.state.DailyDrawdownBlocked(ctx, h.settings.DailyMaxDDUSDT)
	if err != nil {
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	if ddBlocked {
		release()
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.GateRejectionInc("daily_drawdown") })
		writeJSON(w, http.StatusOK, map[string]any{"status": "blocked_daily_dd", "daily": daily})
		return
	}

	cooling, until, err := h.state.CooldownActive(ctx, strategy)
	if err != nil {
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	if cooling {
		release()
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.GateRejectionInc("cooldown") })
		writeJSON(w, http.StatusOK, map[string]any{"status": "blocked_cooldown", "until": until})
		return
	}

	// Step 7/8: regime/allocation map; a blocked allocation releases the claim.
	alloc, err := riskgate.ResolveAllocation(h.settings, strategy, rg)
	if err != nil {
		var blocked riskgate.ErrBlockedAlloc
		if errors.As(err, &blocked) {
			release()
			h.metricInc(func(mw *metrics.MetricsWrapper) { mw.GateRejectionInc("regime_alloc") })
			writeJSON(w, http.StatusOK, map[string]any{"status": "blocked_by_regime", "regime": rg})
			return
		}
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}

	equity, err := h.venue.FetchBalance(ctx, h.settings.EquityCode, h.settings.EquitySource)
	if err != nil {
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	ticker, err := h.venue.FetchTicker(ctx, symbol)
	if err != nil {
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	market, err := h.venue.FetchMarketInfo(ctx, symbol)
	if err != nil {
		release()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	if h.settings.MinNotionalUSDT > market.MinNotional {
		market.MinNotional = h.settings.MinNotionalUSDT
	}

	livePrice := ticker.Price(h.settings.UseMarkPrice)
	refPrice := livePrice
	if sig.Price != nil {
		refPrice = *sig.Price
	}

	comment := models.ParseComment(sig.Comment)

	sizingMode := h.settings.SizingMode
	if sig.Sizing != "" {
		sizingMode = sig.Sizing
	}
	riskPct := h.settings.RiskPct
	if sig.RiskPct != nil {
		riskPct = *sig.RiskPct
	}
	allocPct := alloc.AllocPct
	if sig.AllocPct != nil {
		allocPct = *sig.AllocPct
	}

	params := orders.Params{
		Symbol:            symbol,
		Market:            market,
		Equity:            equity,
		LivePrice:         livePrice,
		RefPrice:          refPrice,
		Regime:            rg,
		Strategy:          strategy,
		PositionMode:      h.settings.PositionMode,
		TakerFee:          h.settings.TakerFee,
		MaxSlippage:       h.settings.MaxSlippage,
		FeeBuffer:         h.settings.FeeBuffer,
		MarginBuffer:      h.settings.MarginBuffer,
		AllocPct:          allocPct,
		Leverage:          alloc.Leverage,
		SizingMode:        sizing.Mode(sizingMode),
		RiskPct:           riskPct,
		AssumeHoldHours:   h.settings.AssumeHoldHours,
		EdgeEnabled:       h.settings.EdgeFilterEnabled,
		EdgeRequireTP:     h.settings.EdgeRequireTP,
		EdgeAllowDeriveTP: h.settings.EdgeAllowDeriveTP,
		EdgeATRTPMultiple: h.settings.EdgeATRTPMultiple,
		MinEdgeUSDT:       h.settings.MinEdgeUSDT,
		ReconcileRetries:  h.settings.ReconcileRetries,
		ReconcileInterval: h.settings.ReconcileInterval,
		StreakLimits:      streakLimitsFor(h.settings, strategy),
	}

	serverUID := uuid.NewString()

	var response map[string]any
	switch action {
	case orders.ActionExit:
		res, err := h.engine.Exit(ctx, params, &sig)
		if err != nil {
			if errors.Is(err, orders.ErrNoOpenPosition) {
				release()
				writeJSON(w, http.StatusOK, map[string]any{"status": "no_open_position"})
				return
			}
			h.respondDispatchError(w, release, err)
			return
		}
		h.metricInc(func(mw *metrics.MetricsWrapper) {
			mw.OrdersPlacedInc()
			mw.ObserveRealized(res.Realized, res.Daily.Total)
		})
		response = map[string]any{
			"mode": "exit", "server_uid": serverUID, "regime": rg, "regime_meta": regimeMeta,
			"order": res.Order, "order_final": res.Order, "final_position": h.finalPosition(ctx, symbol),
			"realizedPnL": res.Realized, "daily": res.Daily,
		}
	case orders.ActionEntry:
		res, err := h.engine.Entry(ctx, params, &sig, comment)
		if err != nil {
			h.respondDispatchError(w, release, err)
			return
		}
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.OrdersPlacedInc() })
		response = map[string]any{
			"mode": "entry", "server_uid": serverUID, "regime": rg, "regime_meta": regimeMeta,
			"order": res.Order, "order_final": res.Order, "final_position": h.finalPosition(ctx, symbol),
			"amount": res.Amount,
		}
	case orders.ActionTarget:
		ord, err := h.engine.Reconcile(ctx, params, &sig)
		if err != nil {
			h.respondDispatchError(w, release, err)
			return
		}
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.OrdersPlacedInc() })
		response = map[string]any{
			"mode": "target", "server_uid": serverUID, "regime": rg, "regime_meta": regimeMeta,
			"order": ord, "order_final": ord, "final_position": h.finalPosition(ctx, symbol),
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// respondDispatchError releases the idempotency claim (per relayerr's
// ReleasesClaim policy, which is true for every kind reachable here) and
// writes the response the error's classified relayerr.Kind calls for. The
// order engine wraps sizing and edge-filter rejections with relayerr.New at
// the point they're produced (internal/orders); anything
// it returns unwrapped defaults to KindInternal via relayerr.KindOf, which
// this treats the same as a venue order failure.
func (h *Handler) respondDispatchError(w http.ResponseWriter, release func(), err error) {
	kind := relayerr.KindOf(err)
	if relayerr.ReleasesClaim(kind) {
		release()
	}
	switch kind {
	case relayerr.KindSizingConstraint:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "sizing_constraint", "detail": err.Error()})
	case relayerr.KindGatedEdge:
		h.metricInc(func(mw *metrics.MetricsWrapper) { mw.GateRejectionInc("edge") })
		writeJSON(w, http.StatusOK, map[string]any{"status": "blocked_by_edge"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
	}
}

// metricInc calls fn with the handler's metrics wrapper when one is
// configured, so metrics remain optional without littering call sites with
// nil checks.
func (h *Handler) metricInc(fn func(*metrics.MetricsWrapper)) {
	if h.metrics != nil {
		fn(h.metrics)
	}
}

// finalPosition re-reads the venue's current position for symbol after a
// dispatch, for the "final position snapshot" the response contract
// requires. Best-effort: a lookup failure logs and yields nil rather than
// failing an otherwise-successful response.
func (h *Handler) finalPosition(ctx context.Context, symbol string) any {
	positions, err := h.venue.FetchPositions(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("final position lookup failed")
		return nil
	}
	if len(positions) == 0 {
		return nil
	}
	return positions[0]
}

func streakLimitsFor(settings *cfg.Settings, strategy string) pnl.StreakLimits {
	if strategy == "bear" {
		return pnl.StreakLimits{LossStreakLimit: settings.LossStreakLimitBear, CooldownMinutes: settings.CooldownMinBear}
	}
	return pnl.StreakLimits{LossStreakLimit: settings.LossStreakLimitBull, CooldownMinutes: settings.CooldownMinBull}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeJSON serializes v as JSON, replacing any NaN/Infinity float with
// null rather than letting encoding/json fail outright. json.Marshal
// itself errors on NaN/Inf, so the walk happens via reflection ahead of
// marshaling rather than as a post-pass over already-marshaled output.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(sanitizeFloats(v)); err != nil {
		log.Error().Err(err).Msg("failed to encode webhook response")
	}
}

// sanitizeFloats walks v and returns an equivalent value with every
// NaN/Infinity float64 or float32 replaced by nil, recursing through
// structs, maps, slices, arrays, and pointers so a single NaN deep inside
// an order or PnL snapshot can't fail the whole response.
func sanitizeFloats(v any) any {
	if v == nil {
		return nil
	}
	return sanitizeReflect(reflect.ValueOf(v))
}

func sanitizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Float64, reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitizeReflect(rv.Elem())
	case reflect.Struct:
		if rv.CanInterface() {
			if m, ok := rv.Interface().(json.Marshaler); ok {
				return m
			}
		}
		t := rv.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			name := jsonFieldName(field)
			if name == "-" {
				continue
			}
			out[name] = sanitizeReflect(rv.Field(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[fmt.Sprint(key.Interface())] = sanitizeReflect(rv.MapIndex(key))
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sanitizeReflect(rv.Index(i))
		}
		return out
	default:
		if !rv.IsValid() {
			return nil
		}
		return rv.Interface()
	}
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}
