package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTieredBackoff_EscalatesWithAttemptNumber(t *testing.T) {
	assert.Equal(t, 5*time.Second, tieredBackoff(1, 0))
	assert.Equal(t, 15*time.Second, tieredBackoff(2, 0))
	assert.Equal(t, 30*time.Second, tieredBackoff(3, 0))
	assert.Equal(t, 60*time.Second, tieredBackoff(4, 0))
	// clamps at the last tier for any further attempt
	assert.Equal(t, 60*time.Second, tieredBackoff(9, 0))
}

func TestTieredBackoff_NeverWaitsLessThanTheHint(t *testing.T) {
	assert.Equal(t, 90*time.Second, tieredBackoff(1, 90*time.Second))
}
