package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowIsUTCWholeSeconds(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.Zero(t, got.Nanosecond())
	assert.False(t, got.Before(before), "%v before %v", got, before)
	assert.False(t, got.After(after), "%v after %v", got, after)
}

func TestNowNeverGoesBackwards(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	assert.False(t, second.Before(first))
}

func TestBackupStampRoundTrips(t *testing.T) {
	t.Parallel()

	now := New().Now()
	stamp := now.Format("20060102_150405")
	parsed, err := time.ParseInLocation("20060102_150405", stamp, time.UTC)
	assert.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
