package indengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"charting-engine/internal/gateway"
	"charting-engine/internal/indicator"
	"charting-engine/internal/logger"
	"charting-engine/internal/metrics"
	"charting-engine/internal/model"
	redisstore "charting-engine/internal/store/redis"
)

const maxBodyBytes = 8 << 20

var (
	errNoStore   = errors.New("no bar store configured")
	errNoSeries  = errors.New("either symbol or bars is required")
	errBadIndex  = errors.New("index out of range")
	errBadSymbol = errors.New("symbol is required")
	errBadBody   = errors.New("malformed request body")
)

// ComputeRequest selects an indicator and its input. Bars, when present,
// take precedence over Symbol; From is an exclusive lower bound (unix ms)
// on stored bars.
type ComputeRequest struct {
	Indicator string           `json:"indicator"`
	Params    indicator.Params `json:"params,omitempty"`
	Symbol    string           `json:"symbol,omitempty"`
	Bars      model.Series     `json:"bars,omitempty"`
	From      int64            `json:"from,omitempty"`
}

// TooltipRequest asks for the tooltip of one bar. A negative Index counts
// from the end, -1 being the latest bar.
type TooltipRequest struct {
	ComputeRequest
	Index       int    `json:"index"`
	Placeholder string `json:"placeholder,omitempty"`
	Precision   *int   `json:"precision,omitempty"`
}

// TooltipResponse is the formatted tooltip for one bar.
type TooltipResponse struct {
	Indicator string                  `json:"indicator"`
	Params    indicator.Params        `json:"params"`
	Index     int                     `json:"index"`
	Timestamp int64                   `json:"ts"`
	Items     []indicator.TooltipItem `json:"items"`
}

// IndicatorInfo describes one registered indicator.
type IndicatorInfo struct {
	Name          string               `json:"name"`
	ShortName     string               `json:"short_name"`
	Series        indicator.SeriesKind `json:"series"`
	Precision     int                  `json:"precision"`
	DefaultParams indicator.Params     `json:"default_params"`
	Plots         []indicator.PlotMeta `json:"plots"`
}

// IngestResponse reports the outcome of a bar append.
type IngestResponse struct {
	Symbol    string `json:"symbol"`
	Stored    int    `json:"stored"`
	Published int    `json:"published"`
}

// StatsResponse reports live hub and cache state.
type StatsResponse struct {
	Clients      int                  `json:"clients"`
	Streams      int                  `json:"streams"`
	Latency      gateway.LatencyStats `json:"latency"`
	CacheEnabled bool                 `json:"cache_enabled"`
	BreakerState string               `json:"breaker_state,omitempty"`
	Symbols      []string             `json:"symbols,omitempty"`
}

// Handler returns the HTTP surface of the service.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", svc.health)
	mux.Handle("GET /metrics", metrics.Handler(svc.promReg))
	mux.HandleFunc("GET /api/indicators", svc.handleIndicators)
	mux.HandleFunc("PUT /api/indicators/{name}/defaults", svc.handleSetDefaults)
	mux.HandleFunc("POST /api/compute", svc.handleCompute)
	mux.HandleFunc("POST /api/tooltip", svc.handleTooltip)
	mux.HandleFunc("POST /api/bars/{symbol}", svc.handleIngest)
	mux.HandleFunc("GET /api/stats", svc.handleStats)
	mux.Handle("GET /ws", svc.hub)
	return withTrace(mux)
}

// withTrace tags every request context with a trace id, reusing the
// caller's X-Trace-Id when present.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = logger.NewTraceID()
		}
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

func (svc *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	names := svc.reg.List()
	out := make([]IndicatorInfo, 0, len(names))
	for _, name := range names {
		d, err := svc.reg.Get(name)
		if err != nil {
			// removed between List and Get
			continue
		}
		out = append(out, describe(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleSetDefaults(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Params indicator.Params `json:"params"`
	}
	if err := decode(r, &body); err != nil {
		svc.fail(w, r, err)
		return
	}
	name := r.PathValue("name")
	if err := svc.reg.SetDefaults(name, body.Params); err != nil {
		svc.fail(w, r, err)
		return
	}
	if svc.cache != nil {
		change := redisstore.DefaultsChange{Origin: svc.id, Name: name, Params: body.Params}
		if err := svc.cache.PublishDefaults(r.Context(), change); err != nil {
			slog.Warn("[indengine] publish defaults failed", append(logger.LogWithTrace(r.Context()), "error", err)...)
		}
	}
	d, err := svc.reg.Get(name)
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(d))
}

func describe(d *indicator.Descriptor) IndicatorInfo {
	return IndicatorInfo{
		Name:          d.Name,
		ShortName:     d.ShortName,
		Series:        d.Series,
		Precision:     d.Precision,
		DefaultParams: d.DefaultParams,
		Plots:         indicator.PlotMetas(d.Plots),
	}
}

func (svc *Service) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := decode(r, &req); err != nil {
		svc.fail(w, r, err)
		return
	}
	snap, _, source, err := svc.compute(r.Context(), req)
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	w.Header().Set("X-Cache", source)
	writeJSON(w, http.StatusOK, snap)
}

func (svc *Service) handleTooltip(w http.ResponseWriter, r *http.Request) {
	var req TooltipRequest
	if err := decode(r, &req); err != nil {
		svc.fail(w, r, err)
		return
	}
	snap, series, source, err := svc.compute(r.Context(), req.ComputeRequest)
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	res, err := snap.Result(svc.reg)
	if err != nil {
		svc.fail(w, r, err)
		return
	}

	idx := req.Index
	if idx < 0 {
		idx += len(series)
	}
	if idx < 0 || idx >= len(series) || idx >= len(res.Records) {
		svc.fail(w, r, errors.Wrapf(errBadIndex, "index %d of %d bars", req.Index, len(series)))
		return
	}

	placeholder := req.Placeholder
	if placeholder == "" {
		placeholder = svc.placeholder
	}
	items := indicator.TooltipAt(series, res, idx, indicator.TooltipOptions{
		Placeholder: placeholder,
		Precision:   req.Precision,
	})
	w.Header().Set("X-Cache", source)
	writeJSON(w, http.StatusOK, TooltipResponse{
		Indicator: res.Name,
		Params:    res.Params,
		Index:     idx,
		Timestamp: series[idx].Timestamp,
		Items:     items,
	})
}

func (svc *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		svc.fail(w, r, errBadSymbol)
		return
	}
	if svc.writer == nil {
		svc.fail(w, r, errNoStore)
		return
	}
	var bars model.Series
	if err := decode(r, &bars); err != nil {
		svc.fail(w, r, err)
		return
	}
	if err := bars.Validate(); err != nil {
		svc.fail(w, r, err)
		return
	}
	if err := svc.writer.InsertBars(r.Context(), symbol, bars); err != nil {
		svc.fail(w, r, err)
		return
	}
	svc.prom.BarsIngested.Add(float64(len(bars)))
	published := svc.hub.Publish(symbol, bars)

	writeJSON(w, http.StatusOK, IngestResponse{Symbol: symbol, Stored: len(bars), Published: published})
}

func (svc *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	st := StatsResponse{
		Clients:      svc.hub.ClientCount(),
		Streams:      svc.hub.StreamCount(),
		Latency:      svc.hub.Latency.Stats(),
		CacheEnabled: svc.cache != nil,
	}
	if svc.cache != nil {
		st.BreakerState = svc.cache.Breaker().CurrentState().String()
	}
	if svc.reader != nil {
		symbols, err := svc.reader.Symbols(r.Context())
		if err != nil {
			svc.fail(w, r, err)
			return
		}
		st.Symbols = symbols
	}
	writeJSON(w, http.StatusOK, st)
}

// compute resolves the request to a snapshot, trying the Redis cache, then
// the stored snapshot of the symbol, then a full pass. It returns the input
// series and where the result came from: "hit", "store" or "miss".
func (svc *Service) compute(ctx context.Context, req ComputeRequest) (*indicator.Snapshot, model.Series, string, error) {
	desc, err := svc.reg.Get(req.Indicator)
	if err != nil {
		return nil, nil, "", err
	}
	params := req.Params
	if len(params) == 0 {
		params = desc.DefaultParams
	}
	if err := desc.CheckParams(params); err != nil {
		return nil, nil, "", err
	}
	series, err := svc.loadSeries(ctx, req)
	if err != nil {
		return nil, nil, "", err
	}

	fp := series.Fingerprint()
	key := indicator.CacheKey(desc.Name, params, fp)
	if svc.cache != nil {
		snap, err := svc.cache.Get(ctx, key)
		if err != nil {
			slog.Debug("[indengine] cache get failed", append(logger.LogWithTrace(ctx), "key", key, "error", err)...)
		}
		if snap != nil {
			svc.prom.CacheHits.Inc()
			return snap, series, "hit", nil
		}
		svc.prom.CacheMisses.Inc()
	}

	if req.Symbol != "" && len(req.Bars) == 0 && svc.reader != nil {
		snap, err := svc.reader.ReadSnapshot(ctx, req.Symbol, desc.Name, params)
		if err != nil {
			slog.Warn("[indengine] stored snapshot read failed", append(logger.LogWithTrace(ctx), "symbol", req.Symbol, "error", err)...)
		}
		if snap != nil && snap.Fingerprint == fp {
			svc.storeCache(ctx, snap)
			return snap, series, "store", nil
		}
	}

	start := time.Now()
	res, err := desc.Compute(series, params)
	if err != nil {
		return nil, nil, "", err
	}
	svc.prom.ObserveCompute(desc.Name, time.Since(start))

	snap := indicator.NewSnapshot(res, fp)
	svc.storeCache(ctx, snap)
	if req.Symbol != "" && len(req.Bars) == 0 && svc.writer != nil {
		if err := svc.writer.SaveSnapshot(ctx, req.Symbol, snap); err != nil {
			slog.Warn("[indengine] snapshot save failed", append(logger.LogWithTrace(ctx), "symbol", req.Symbol, "error", err)...)
		}
	}
	slog.Debug("[indengine] computed", append(logger.LogWithTrace(ctx),
		"indicator", desc.Name, "params", params.String(), "bars", len(series), "took", time.Since(start))...)
	return snap, series, "miss", nil
}

func (svc *Service) storeCache(ctx context.Context, snap *indicator.Snapshot) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.Set(ctx, snap); err != nil {
		slog.Debug("[indengine] cache set failed", append(logger.LogWithTrace(ctx), "error", err)...)
	}
}

func (svc *Service) loadSeries(ctx context.Context, req ComputeRequest) (model.Series, error) {
	if len(req.Bars) > 0 {
		if err := req.Bars.Validate(); err != nil {
			return nil, err
		}
		return req.Bars, nil
	}
	if req.Symbol == "" {
		return nil, errNoSeries
	}
	if svc.reader == nil {
		return nil, errNoStore
	}
	return svc.reader.ReadBars(ctx, req.Symbol, req.From)
}

// fail maps err to a status code, counts it and writes a JSON error body.
func (svc *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, reason := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, indicator.ErrUnknownIndicator):
		code, reason = http.StatusNotFound, "unknown_indicator"
	case errors.Is(err, indicator.ErrInvalidParameter):
		code, reason = http.StatusBadRequest, "invalid_params"
	case errors.Is(err, model.ErrInvalidSeries):
		code, reason = http.StatusBadRequest, "invalid_series"
	case errors.Is(err, errNoSeries), errors.Is(err, errBadIndex),
		errors.Is(err, errBadSymbol), errors.Is(err, errBadBody):
		code, reason = http.StatusBadRequest, "bad_request"
	case errors.Is(err, errNoStore):
		code, reason = http.StatusServiceUnavailable, "no_store"
	}
	svc.prom.ComputeErrs.WithLabelValues(reason).Inc()
	if code == http.StatusInternalServerError {
		slog.Error("[indengine] request failed", append(logger.LogWithTrace(r.Context()), "path", r.URL.Path, "error", err)...)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(errBadBody, "%v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
