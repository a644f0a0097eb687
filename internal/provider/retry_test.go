package provider

import (
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsRetryable(429))
	assert.True(t, p.IsRetryable(503))
	assert.True(t, p.IsRetryable(500))
	assert.True(t, p.IsRetryable(599), "any 5xx not explicitly listed still retries")
	assert.False(t, p.IsRetryable(400))
	assert.False(t, p.IsRetryable(404))
}

func TestDelayIsCappedAtMaxDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = rand.New(rand.NewSource(1))
	p.JitterFraction = 0
	d := p.Delay(10)
	assert.LessOrEqual(t, d, p.MaxDelay)
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = rand.New(rand.NewSource(1))
	p.JitterFraction = 0
	d1 := p.Delay(1)
	d2 := p.Delay(2)
	d3 := p.Delay(3)
	assert.Equal(t, p.InitialDelay, d1)
	assert.Equal(t, p.InitialDelay*2, d2)
	assert.Equal(t, p.InitialDelay*4, d3)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("120")
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)
}

func TestParseRetryAfterNegativeRejected(t *testing.T) {
	_, ok := ParseRetryAfter("-5")
	assert.False(t, ok)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	d, ok := ParseRetryAfter(future)
	assert.True(t, ok)
	assert.Greater(t, d, 50*time.Minute)
}

func TestParseRetryAfterEmpty(t *testing.T) {
	_, ok := ParseRetryAfter("")
	assert.False(t, ok)
}

func TestParseRetryAfterGarbage(t *testing.T) {
	_, ok := ParseRetryAfter("not-a-date")
	assert.False(t, ok)
}
