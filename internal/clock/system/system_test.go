package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockNowIsUTCAndCurrent(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := New().Now()
	after := time.Now()

	require.Equal(t, time.UTC, got.Location())
	assert.False(t, got.Before(before.Add(-time.Second)))
	assert.False(t, got.After(after.Add(time.Second)))
}

func TestClockVersionsSort(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now().Format("20060102_150405")
	second := clk.Now().Format("20060102_150405")
	assert.LessOrEqual(t, first, second)
}
