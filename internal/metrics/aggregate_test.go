package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 0.0, mean([]float64{}))
	assert.Equal(t, 5.0, mean([]float64{5}))
	assert.InDelta(t, 11.33, mean([]float64{2, 8, 24}), 0.01)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 8.0, median([]float64{24, 2, 8}), "odd count takes the middle element")
	assert.Equal(t, 5.0, median([]float64{2, 8}), "even count averages the middle pair")
	assert.Equal(t, 3.0, median([]float64{3}))
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	vals := []float64{9, 1, 5}
	median(vals)
	assert.Equal(t, []float64{9, 1, 5}, vals)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.0, rate(0, 0), "zero denominator yields zero, not NaN")
	assert.Equal(t, 50.0, rate(1, 2))
	assert.InDelta(t, 33.3, round1(rate(1, 3)), 0.001)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 2.5, round1(2.45))
	assert.Equal(t, 2.4, round1(2.44))
	assert.Equal(t, 0.0, round1(0))
}
