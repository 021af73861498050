package aiopen

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestOpener_NoAPIKeyReturnsFallback(t *testing.T) {
	c := New("", 2*time.Second, 2, 2)
	text, err := c.Opener(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, defaultFallback, text)
}

func TestOpener_TimesOutReturnsFallback(t *testing.T) {
	c := New("test-key", 10*time.Millisecond, 2, 2)
	// endpoint is fixed to Google's host; this exercises the timeout branch
	// via an unreachable-in-time context instead of network isolation.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	text, err := c.Opener(ctx, "prompt")
	assert.Error(t, err)
	assert.Equal(t, defaultFallback, text)
}

func TestOpener_RateLimiterRejectsWhenContextAlreadyDone(t *testing.T) {
	c := New("test-key", time.Second, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, err := c.Opener(ctx, "prompt")
	assert.Error(t, err)
	assert.Equal(t, defaultFallback, text)
}

func TestNew_ZeroRateLimitMeansUnbounded(t *testing.T) {
	c := New("test-key", time.Second, 0, 0)
	assert.Equal(t, rate.Inf, c.limiter.Limit())
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestDecodeGeminiResponse_HappyPathShape(t *testing.T) {
	// Exercises the response decoding shape directly against a local server
	// standing in for the Gemini endpoint would require overriding the
	// package-level endpoint const; instead this test locks down the JSON
	// contract the real decoder expects.
	raw := `{"candidates":[{"content":{"parts":[{"text":"Loved your recent launch!"}]}}]}`
	var out generateResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "Loved your recent launch!", out.Candidates[0].Content.Parts[0].Text)
}
