package sse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines_YieldsDataPayloadsAndStopsOnDone(t *testing.T) {
	body := "event: x\ndata: {\"a\":1}\n\ndata: {\"a\":2}\n\ndata: [DONE]\n\ndata: {\"a\":3}\n"
	next := Lines(strings.NewReader(body), time.Second)

	var got []string
	for {
		payload, ok, err := next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, payload)
	}
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, got)
}

func TestLines_SkipsNonDataLines(t *testing.T) {
	body := ": comment\nevent: message\ndata: {\"x\":true}\n\n"
	next := Lines(strings.NewReader(body), time.Second)
	payload, ok, err := next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"x":true}`, payload)

	_, ok, err = next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsIdleTimeout_MatchesSentinel(t *testing.T) {
	assert.True(t, IsIdleTimeout(ErrIdleTimeout))
	assert.False(t, IsIdleTimeout(nil))
}
