/*
NAME
  read_timeout.go

DESCRIPTION
  read_timeout.go bounds a single bulk IN read by the configured timeout,
  since gousb's stream Read has no inherent per-call deadline. A timed-out
  read is not an error (spec.md §4.1); it yields a zero-length heartbeat.

LICENSE
  See the LICENSE file distributed with this repository.
*/

package usb

import (
	"errors"
	"io"
	"time"
)

// errReadTimeout signals that timeout elapsed before the read completed.
var errReadTimeout = errors.New("usb: read timeout")

// readWithTimeout performs a single r.Read(buf) bounded by timeout. If the
// read has not completed within timeout, readWithTimeout returns
// errReadTimeout; the in-flight read is abandoned (the stream is always
// closed by the caller immediately after, via defer stream.Close()).
func readWithTimeout(r io.Reader, buf []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-time.After(timeout):
		return 0, errReadTimeout
	}
}
