package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clk := NewFixed(start)

	assert.Equal(t, start, clk.Now())
	assert.Equal(t, start, clk.Now(), "fixed clock does not tick on its own")

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	clk.Set(start)
	assert.Equal(t, start, clk.Now())
}
