package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"charting-engine/internal/indicator"
)

func TestCompareRecords(t *testing.T) {
	want := []indicator.Record{{}, {"a": 1}, {"a": 2, "b": 3}}

	n, worst := compareRecords([]indicator.Record{{}, {"a": 1}, {"a": 2, "b": 3}}, want, 1e-9)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0.0, worst)

	n, worst = compareRecords([]indicator.Record{{"a": 0}, {"a": 1.5}, {"a": 2}}, want, 1e-9)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0.5, worst)

	n, worst = compareRecords(want[:2], want, 1e-9)
	assert.Equal(t, 1, n)
	assert.True(t, math.IsInf(worst, 1))
}
