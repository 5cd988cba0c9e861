// Package replay feeds stored bars back through indicator streams at a
// configurable speed, for backtests and for checking that incremental
// updates agree with full recomputation.
package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"charting-engine/internal/model"
)

// maxGap caps a single simulated pause between bars.
const maxGap = 5 * time.Second

// Source loads the stored bars of a symbol after afterTS (unix ms).
type Source interface {
	ReadBars(ctx context.Context, symbol string, afterTS int64) (model.Series, error)
}

// Replayer reads bars from a Source and emits them in order.
type Replayer struct {
	src Source
}

// New creates a Replayer backed by src.
func New(src Source) *Replayer {
	return &Replayer{src: src}
}

// Run emits the bars of symbol after fromTS into out and returns how many
// were sent. speed scales the gaps between bar timestamps: 1 is real time,
// 100 is 100x, 0 is as fast as possible. out is not closed.
func (r *Replayer) Run(ctx context.Context, symbol string, fromTS int64, speed float64, out chan<- model.Bar) (int, error) {
	bars, err := r.src.ReadBars(ctx, symbol, fromTS)
	if err != nil {
		return 0, errors.Wrapf(err, "replay %s", symbol)
	}
	if len(bars) == 0 {
		slog.Info("[replay] no bars found", "symbol", symbol)
		return 0, nil
	}
	slog.Info("[replay] loaded bars", "symbol", symbol, "count", len(bars), "speed", speed)

	emitted := 0
	for i, b := range bars {
		if speed > 0 && i > 0 {
			if err := sleep(ctx, scaledGap(bars[i-1].Timestamp, b.Timestamp, speed)); err != nil {
				return emitted, err
			}
		}
		select {
		case <-ctx.Done():
			slog.Info("[replay] cancelled", "emitted", emitted)
			return emitted, ctx.Err()
		case out <- b:
			emitted++
		}
	}
	slog.Info("[replay] completed", "symbol", symbol, "emitted", emitted)
	return emitted, nil
}

func scaledGap(prevTS, ts int64, speed float64) time.Duration {
	gap := time.Duration(ts-prevTS) * time.Millisecond
	if gap <= 0 {
		return 0
	}
	return min(time.Duration(float64(gap)/speed), maxGap)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
