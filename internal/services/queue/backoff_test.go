package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeRetryDelay_GrowsExponentially(t *testing.T) {
	d1 := computeRetryDelay(1)
	d2 := computeRetryDelay(2)
	d3 := computeRetryDelay(3)

	assert.GreaterOrEqual(t, d1, 15*time.Second)
	assert.Less(t, d1, 18*time.Second)

	assert.GreaterOrEqual(t, d2, 30*time.Second)
	assert.Less(t, d2, 36*time.Second)

	assert.GreaterOrEqual(t, d3, 60*time.Second)
	assert.Less(t, d3, 72*time.Second)
}

func TestComputeRetryDelay_FloorsNonPositiveAttempts(t *testing.T) {
	d0 := computeRetryDelay(0)
	d1 := computeRetryDelay(1)
	assert.InDelta(t, float64(d0), float64(d1), float64(4*time.Second))
}
