package indicator

import "math"

// lagBuffer remembers the last lag+1 values pushed so that the value from
// exactly lag pushes ago is available in O(1).
type lagBuffer struct {
	buf   []float64
	head  int
	count int
}

func newLagBuffer(lag int) *lagBuffer {
	return &lagBuffer{buf: make([]float64, lag+1)}
}

func (b *lagBuffer) push(v float64) {
	b.buf[b.head] = v
	b.head = (b.head + 1) % len(b.buf)
	b.count++
}

// lagged returns the value pushed len(buf)-1 pushes before the latest one.
func (b *lagBuffer) lagged() (float64, bool) {
	if b.count < len(b.buf) {
		return 0, false
	}
	// head now points at the oldest slot
	return b.buf[b.head], true
}

func (b *lagBuffer) clone() *lagBuffer {
	cp := *b
	cp.buf = append([]float64(nil), b.buf...)
	return &cp
}

// forwardLag is the REF shift applied to a CR moving average of period p.
func forwardLag(p int) int {
	return int(math.Ceil(float64(p)/2.5 + 1))
}

// ownValue reads key from the record at index j, where j may be the record
// currently being built.
func ownValue(out []Record, cur Record, i, j int, key string) float64 {
	if j == i {
		return cur[key]
	}
	return out[j][key]
}
