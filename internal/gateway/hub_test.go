package gateway

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-engine/internal/indicator"
	"charting-engine/internal/metrics"
	"charting-engine/internal/model"
)

type memHistory struct {
	mu   sync.Mutex
	bars map[string]model.Series

	// afterRead runs once, after the first read has been taken.
	afterRead func()
}

func (m *memHistory) ReadBars(_ context.Context, symbol string, afterTS int64) (model.Series, error) {
	out := m.read(symbol, afterTS)
	if fn := m.afterRead; fn != nil {
		m.afterRead = nil
		fn()
	}
	return out, nil
}

func (m *memHistory) append(symbol string, bars ...model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = append(m.bars[symbol], bars...)
}

func (m *memHistory) read(symbol string, afterTS int64) model.Series {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out model.Series
	for _, b := range m.bars[symbol] {
		if b.Timestamp > afterTS {
			out = append(out, b)
		}
	}
	return out
}

func wave(n int) model.Series {
	s := make(model.Series, n)
	for i := range s {
		c := 100 + 10*math.Sin(float64(i)/5)
		s[i] = model.Bar{
			Timestamp: int64(i+1) * 60_000,
			Open:      c - 0.5, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000 + float64(i),
		}
	}
	return s
}

type fixture struct {
	hub    *Hub
	server *httptest.Server
	reg    *indicator.Registry
	bars   model.Series
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := indicator.NewDefaultRegistry(indicator.PolicyOverwrite)
	bars := wave(60)
	hub := NewHub(Config{
		Registry: reg,
		History:  &memHistory{bars: map[string]model.Series{"BTCUSDT": bars[:50]}},
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{hub: hub, server: srv, reg: reg, bars: bars}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_SubscribeSendsSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Action: ActionSubscribe, ReqID: "r1", Symbol: "BTCUSDT", Indicator: "EMA", Params: indicator.Params{5},
	}))
	msg := readMsg(t, conn)
	require.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, "r1", msg.ReqID)
	require.NotNil(t, msg.Snapshot)
	require.Len(t, msg.Snapshot.Records, 50)

	want, err := f.reg.Compute("EMA", f.bars[:50], indicator.Params{5})
	require.NoError(t, err)
	assert.Equal(t, f.bars[:50].Fingerprint(), msg.Snapshot.Fingerprint)
	assert.Empty(t, msg.Snapshot.Records[3])
	assert.InDelta(t, want.Records[49]["ema5"], msg.Snapshot.Records[49]["ema5"], 1e-9)
}

func TestHub_PublishPushesRecords(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "MACD"}))
	require.Equal(t, TypeSnapshot, readMsg(t, conn).Type)

	// the first bar is already in history and must be skipped
	assert.Equal(t, 3, f.hub.Publish("BTCUSDT", f.bars[49:52]))

	want, err := f.reg.Compute("MACD", f.bars[:52], nil)
	require.NoError(t, err)
	for _, idx := range []int{50, 51} {
		msg := readMsg(t, conn)
		require.Equal(t, TypeRecord, msg.Type)
		require.NotNil(t, msg.Index)
		assert.Equal(t, idx, *msg.Index)
		assert.Equal(t, f.bars[idx].Timestamp, msg.Timestamp)
		for _, key := range []string{"dif", "dea", "macd"} {
			assert.InDelta(t, want.Records[idx][key], msg.Record[key], 1e-9, key)
		}
	}
	assert.Eventually(t, func() bool { return f.hub.Latency.Stats().Count == 3 }, time.Second, 10*time.Millisecond)
}

func TestHub_SharedStreamAndUnsubscribe(t *testing.T) {
	f := newFixture(t)
	a, b := f.dial(t), f.dial(t)

	sub := ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "VR"}
	require.NoError(t, a.WriteJSON(sub))
	require.Equal(t, TypeSnapshot, readMsg(t, a).Type)
	require.NoError(t, b.WriteJSON(sub))
	require.Equal(t, TypeSnapshot, readMsg(t, b).Type)
	assert.Equal(t, 1, f.hub.StreamCount())
	assert.Equal(t, 2, f.hub.ClientCount())

	unsub := sub
	unsub.Action = ActionUnsubscribe
	require.NoError(t, a.WriteJSON(unsub))
	require.NoError(t, b.WriteJSON(unsub))
	assert.Eventually(t, func() bool { return f.hub.StreamCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Errors(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	cases := []struct {
		name string
		msg  ClientMessage
		want string
	}{
		{"unknown indicator", ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "NOPE"}, "unknown indicator"},
		{"bad params", ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "DMI", Params: indicator.Params{14}}, "parameter"},
		{"missing symbol", ClientMessage{Action: ActionSubscribe, Indicator: "EMA"}, "symbol is required"},
		{"not subscribed", ClientMessage{Action: ActionUnsubscribe, Symbol: "BTCUSDT", Indicator: "EMA"}, "not subscribed"},
		{"unknown action", ClientMessage{Action: "dance"}, "unknown action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tc.msg))
			msg := readMsg(t, conn)
			assert.Equal(t, TypeError, msg.Type)
			assert.Contains(t, msg.Error, tc.want)
		})
	}
	assert.Equal(t, 0, f.hub.StreamCount())
}

func TestHub_DisconnectDropsStreams(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "CR"}))
	require.Equal(t, TypeSnapshot, readMsg(t, conn).Type)
	require.Equal(t, 1, f.hub.StreamCount())

	conn.Close()
	assert.Eventually(t, func() bool {
		return f.hub.StreamCount() == 0 && f.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SubscribeCatchesUpBarsIngestedDuringHistoryLoad(t *testing.T) {
	reg := indicator.NewDefaultRegistry(indicator.PolicyOverwrite)
	bars := wave(60)
	history := &memHistory{bars: map[string]model.Series{"BTCUSDT": append(model.Series(nil), bars[:50]...)}}
	hub := NewHub(Config{Registry: reg, History: history})

	// bar 50 is stored and dispatched after the history read but before the
	// stream is registered
	history.afterRead = func() {
		history.append("BTCUSDT", bars[50])
		hub.dispatch(barEvent{symbol: "BTCUSDT", bar: bars[50], enqueued: time.Now()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionSubscribe, Symbol: "BTCUSDT", Indicator: "EMA", Params: indicator.Params{5}}))
	msg := readMsg(t, conn)
	require.Equal(t, TypeSnapshot, msg.Type)
	require.NotNil(t, msg.Snapshot)
	require.Len(t, msg.Snapshot.Records, 51)

	want, err := reg.Compute("EMA", bars[:51], indicator.Params{5})
	require.NoError(t, err)
	assert.InDelta(t, want.Records[50]["ema5"], msg.Snapshot.Records[50]["ema5"], 1e-9)
	assert.Equal(t, bars[:51].Fingerprint(), msg.Snapshot.Fingerprint)
}
