// Package gateway serves live indicator streams to chart clients over
// websockets. Each (symbol, indicator, params) combination that at least one
// client subscribes to is backed by a single indicator.Stream; appended bars
// arrive through a ring buffer and every new record is pushed to the
// stream's subscribers.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"charting-engine/internal/indicator"
	"charting-engine/internal/logger"
	"charting-engine/internal/metrics"
	"charting-engine/internal/model"
	"charting-engine/internal/ringbuf"
)

// HistorySource loads the stored bars of a symbol after afterTS (unix ms).
// *sqlite.Reader satisfies it.
type HistorySource interface {
	ReadBars(ctx context.Context, symbol string, afterTS int64) (model.Series, error)
}

// Config configures a Hub. Registry is required; the rest is optional.
type Config struct {
	Registry *indicator.Registry
	History  HistorySource
	Metrics  *metrics.Metrics

	// RingSize is the capacity of the ingest ring buffer (default 4096).
	RingSize int
	// HistoryTimeout bounds the history load on subscribe (default 5s).
	HistoryTimeout time.Duration
}

type barEvent struct {
	symbol   string
	bar      model.Bar
	enqueued time.Time
}

// liveStream is one shared Stream and the clients subscribed to it.
type liveStream struct {
	symbol  string
	stream  *indicator.Stream
	clients map[*Client]struct{}
}

// Hub manages websocket clients and the live streams they subscribe to.
type Hub struct {
	reg     *indicator.Registry
	history HistorySource
	metrics *metrics.Metrics
	timeout time.Duration

	// ring is single-producer; pushMu serializes concurrent publishers.
	ring   *ringbuf.Ring[barEvent]
	pushMu sync.Mutex
	wake   chan struct{}

	mu       sync.Mutex
	clients  map[*Client]struct{}
	streams  map[string]*liveStream
	bySymbol map[string]map[string]*liveStream

	Latency *LatencyTracker

	upgrader websocket.Upgrader
}

// NewHub creates a hub. Run must be started for published bars to reach
// subscribers.
func NewHub(cfg Config) *Hub {
	size := cfg.RingSize
	if size <= 0 {
		size = 4096
	}
	timeout := cfg.HistoryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Hub{
		reg:      cfg.Registry,
		history:  cfg.History,
		metrics:  cfg.Metrics,
		timeout:  timeout,
		ring:     ringbuf.New[barEvent](size),
		wake:     make(chan struct{}, 1),
		clients:  make(map[*Client]struct{}),
		streams:  make(map[string]*liveStream),
		bySymbol: make(map[string]map[string]*liveStream),
		Latency:  NewLatencyTracker(10000),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish queues bars of symbol for the live streams and returns how many
// were accepted. Bars are dropped when the ring buffer is full.
func (h *Hub) Publish(symbol string, bars model.Series) int {
	now := time.Now()
	accepted := 0

	h.pushMu.Lock()
	for _, b := range bars {
		if !h.ring.Push(barEvent{symbol: symbol, bar: b, enqueued: now}) {
			if h.metrics != nil {
				h.metrics.RingBufOverflow.Inc()
			}
			continue
		}
		accepted++
	}
	h.pushMu.Unlock()

	if accepted > 0 {
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	return accepted
}

// Run drains the ring buffer until ctx is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	batch := make([]barEvent, 0, 256)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.wake:
		case <-ticker.C:
		}
		for {
			batch = h.ring.Drain(batch[:0], cap(batch))
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				h.dispatch(ev)
			}
		}
	}
}

// dispatch appends one bar to every live stream of its symbol and pushes
// the new record to their subscribers. Bars not newer than a stream's last
// bar are already part of its history and are skipped.
func (h *Hub) dispatch(ev barEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ls := range h.bySymbol[ev.symbol] {
		h.push(ls, ev.bar)
	}
	h.Latency.Record(time.Since(ev.enqueued))
}

// push appends bar to ls and sends the record to its clients. The caller
// holds h.mu.
func (h *Hub) push(ls *liveStream, bar model.Bar) {
	if last, ok := ls.stream.Bars().Last(); ok && bar.Timestamp <= last.Timestamp {
		return
	}
	start := time.Now()
	rec, err := ls.stream.Append(bar)
	if err != nil {
		slog.Warn("[gateway] append failed",
			"trace_id", logger.GenerateTraceID(ls.symbol, bar.Time()),
			"indicator", ls.stream.Name(), "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.StreamAppend.Observe(time.Since(start).Seconds())
	}

	idx := ls.stream.Len() - 1
	msg := encode(ServerMessage{
		Type:      TypeRecord,
		Symbol:    ls.symbol,
		Indicator: ls.stream.Name(),
		Params:    ls.stream.Params(),
		Index:     &idx,
		Timestamp: bar.Timestamp,
		Record:    rec,
	})
	for c := range ls.clients {
		c.trySend(msg)
	}
}

// ServeHTTP upgrades the request to a websocket and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[gateway] ws upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	slog.Info("[gateway] ws client connected", "client", c.id, "clients", n)

	go c.writePump()
	go c.readPump()
}

// subscribe attaches c to the live stream for req, creating and warming it
// from stored history on first use, and sends the current snapshot.
func (h *Hub) subscribe(c *Client, req ClientMessage) error {
	if req.Symbol == "" {
		return errors.New("symbol is required")
	}
	desc, err := h.reg.Get(req.Indicator)
	if err != nil {
		return err
	}
	params := req.Params
	if len(params) == 0 {
		params = desc.DefaultParams
	}
	if err := desc.CheckParams(params); err != nil {
		return err
	}
	key := streamKey(req.Symbol, desc.Name, params)

	h.mu.Lock()
	_, ok := h.streams[key]
	h.mu.Unlock()

	// History is loaded outside the lock; a racing subscriber may win.
	if !ok {
		stream, err := h.newStream(desc, params, req.Symbol)
		if err != nil {
			return err
		}
		ls := h.register(key, &liveStream{symbol: req.Symbol, stream: stream, clients: make(map[*Client]struct{})})
		if ls.stream == stream {
			if err := h.catchUp(key, ls); err != nil {
				h.mu.Lock()
				h.detach(c, key)
				h.mu.Unlock()
				return err
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		h.detach(c, key)
		return errors.New("client disconnected")
	}
	ls, ok := h.streams[key]
	if !ok {
		return errors.Errorf("stream %s closed during subscribe", key)
	}
	ls.clients[c] = struct{}{}
	c.addSub(key)

	res := ls.stream.Result()
	c.trySend(encode(ServerMessage{
		Type:      TypeSnapshot,
		ReqID:     req.ReqID,
		Symbol:    req.Symbol,
		Indicator: desc.Name,
		Params:    res.Params,
		Snapshot:  indicator.NewSnapshot(res, ls.stream.Bars().Fingerprint()),
	}))
	slog.Info("[gateway] subscribed", "client", c.id, "stream", key, "bars", ls.stream.Len())
	return nil
}

// register installs ls under key unless another subscriber got there
// first, and returns the stream that is live for key.
func (h *Hub) register(key string, ls *liveStream) *liveStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.streams[key]; ok {
		return existing
	}
	h.streams[key] = ls
	if h.bySymbol[ls.symbol] == nil {
		h.bySymbol[ls.symbol] = make(map[string]*liveStream)
	}
	h.bySymbol[ls.symbol][key] = ls
	if h.metrics != nil {
		h.metrics.Subscriptions.Inc()
	}
	return ls
}

// catchUp appends bars stored after the history load of a newly registered
// stream. Bars published from then on are dispatched to it directly.
func (h *Hub) catchUp(key string, ls *liveStream) error {
	if h.history == nil {
		return nil
	}
	h.mu.Lock()
	var after int64
	if last, ok := ls.stream.Bars().Last(); ok {
		after = last.Timestamp
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	bars, err := h.history.ReadBars(ctx, ls.symbol, after)
	if err != nil {
		return errors.Wrapf(err, "catch up %s", key)
	}
	if len(bars) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[key] != ls {
		return nil
	}
	for _, b := range bars {
		h.push(ls, b)
	}
	slog.Debug("[gateway] caught up", "stream", key, "bars", len(bars))
	return nil
}

func (h *Hub) newStream(desc *indicator.Descriptor, params indicator.Params, symbol string) (*indicator.Stream, error) {
	stream, err := indicator.NewStream(desc, params)
	if err != nil {
		return nil, err
	}
	if h.history == nil {
		return stream, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	bars, err := h.history.ReadBars(ctx, symbol, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "load history for %s", symbol)
	}
	if err := stream.Reset(bars); err != nil {
		return nil, err
	}
	return stream, nil
}

// unsubscribe detaches c from the stream named by req. Streams without
// subscribers are dropped.
func (h *Hub) unsubscribe(c *Client, req ClientMessage) error {
	desc, err := h.reg.Get(req.Indicator)
	if err != nil {
		return err
	}
	params := req.Params
	if len(params) == 0 {
		params = desc.DefaultParams
	}
	key := streamKey(req.Symbol, desc.Name, params)

	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.removeSub(key) {
		return errors.Errorf("not subscribed to %s", key)
	}
	h.detach(c, key)
	return nil
}

// detach removes c from stream key. Callers hold h.mu.
func (h *Hub) detach(c *Client, key string) {
	ls, ok := h.streams[key]
	if !ok {
		return
	}
	delete(ls.clients, c)
	if len(ls.clients) > 0 {
		return
	}
	delete(h.streams, key)
	delete(h.bySymbol[ls.symbol], key)
	if len(h.bySymbol[ls.symbol]) == 0 {
		delete(h.bySymbol, ls.symbol)
	}
	if h.metrics != nil {
		h.metrics.Subscriptions.Dec()
	}
}

// RemoveClient unregisters c, drops its subscriptions and closes its send
// channel. Safe to call more than once.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for _, key := range c.takeSubs() {
		h.detach(c, key)
	}
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	slog.Info("[gateway] ws client disconnected", "client", c.id)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// StreamCount returns the number of live streams.
func (h *Hub) StreamCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func streamKey(symbol, name string, params indicator.Params) string {
	return symbol + "|" + name + "|" + params.String()
}
