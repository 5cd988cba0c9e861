package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-engine/internal/model"
)

type fakeSource model.Series

func (f fakeSource) ReadBars(_ context.Context, _ string, afterTS int64) (model.Series, error) {
	var out model.Series
	for _, b := range f {
		if b.Timestamp > afterTS {
			out = append(out, b)
		}
	}
	return out, nil
}

func bars(n int) model.Series {
	s := make(model.Series, n)
	for i := range s {
		s[i] = model.Bar{Timestamp: int64(i+1) * 60_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	}
	return s
}

func TestRun_EmitsInOrder(t *testing.T) {
	out := make(chan model.Bar, 10)
	n, err := New(fakeSource(bars(5))).Run(context.Background(), "X", 120_000, 0, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	close(out)

	var got []int64
	for b := range out {
		got = append(got, b.Timestamp)
	}
	assert.Equal(t, []int64{180_000, 240_000, 300_000}, got)
}

func TestRun_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Bar)
	done := make(chan error, 1)
	go func() {
		_, err := New(fakeSource(bars(5))).Run(ctx, "X", 0, 0, out)
		done <- err
	}()
	<-out
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("replay did not stop")
	}
}

func TestScaledGap(t *testing.T) {
	assert.Equal(t, 600*time.Millisecond, scaledGap(0, 60_000, 100))
	assert.Equal(t, maxGap, scaledGap(0, 3_600_000, 1))
	assert.Equal(t, time.Duration(0), scaledGap(60_000, 60_000, 10))
}
