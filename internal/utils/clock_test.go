package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToday(t *testing.T) {
	clock := &MockClock{FixedNow: time.Date(2025, time.June, 7, 23, 30, 0, 0, time.UTC)}

	assert.Equal(t, "2025-06-07", Today(clock, "").String())
	assert.Equal(t, "2025-06-08", Today(clock, "Europe/Warsaw").String())
	assert.Equal(t, "2025-06-07", Today(clock, "America/New_York").String())
	assert.Equal(t, "2025-06-07", Today(clock, "Not/AZone").String())
}
