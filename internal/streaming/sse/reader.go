// Package sse provides the shared idle-timeout-guarded line scanner every
// backend streaming adapter pulls chunked bytes through, modeled on the
// teacher's openai_builtin.go parseSSEStream helpers.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrIdleTimeout is returned when no bytes arrive within the configured
// idle window — a stalled backend connection, not a clean stream end.
var ErrIdleTimeout = errors.New("sse: read idle timeout")

// timedReader applies a per-Read deadline so a stalled backend doesn't
// block the scanner forever.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, ErrIdleTimeout
	}
}

// IsIdleTimeout reports whether err originated from the idle-timeout guard.
func IsIdleTimeout(err error) bool {
	return errors.Is(err, ErrIdleTimeout)
}

const defaultIdleTimeout = 60 * time.Second

// Lines returns a scanner over r's `data: <payload>` lines, skipping blank
// lines and anything not carrying the data prefix, and stopping cleanly on
// a literal `[DONE]` payload. Payloads are yielded via the returned
// function; call it in a loop until ok is false.
func Lines(r io.Reader, idleTimeout time.Duration) func() (payload string, ok bool, err error) {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	scanner := bufio.NewScanner(&timedReader{r: r, timeout: idleTimeout})
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return func() (string, bool, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", false, nil
			}
			if data == "" {
				continue
			}
			return data, true, nil
		}
		return "", false, scanner.Err()
	}
}
