package upstream

import (
	"errors"
	"io"
	"time"
)

// ErrFirstTokenTimeout marks a stream that produced no bytes before the
// watchdog fired. The dispatcher maps it to 504 after retries.
var ErrFirstTokenTimeout = errors.New("no response bytes before first-token timeout")

// firstByteResult carries the outcome of the initial read.
type firstByteResult struct {
	n   int
	err error
}

// WaitFirstByte performs the first read of body with a deadline. On
// success the returned reader replays the bytes already read followed by
// the rest of the body. The caller still owns closing body.
func WaitFirstByte(body io.Reader, timeout time.Duration) (io.Reader, error) {
	buf := make([]byte, 32*1024)
	ch := make(chan firstByteResult, 1)
	go func() {
		n, err := body.Read(buf)
		ch <- firstByteResult{n: n, err: err}
	}()

	select {
	case res := <-ch:
		if res.n == 0 && res.err != nil {
			return nil, res.err
		}
		return io.MultiReader(newReplayReader(buf[:res.n], res.err), body), nil
	case <-time.After(timeout):
		return nil, ErrFirstTokenTimeout
	}
}

// replayReader hands back the already-read prefix and then the error that
// accompanied it, so EOF-with-data behaves like a plain reader.
type replayReader struct {
	data []byte
	err  error
}

func newReplayReader(data []byte, err error) *replayReader {
	return &replayReader{data: data, err: err}
}

func (r *replayReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 && r.err != nil {
		return n, r.err
	}
	return n, nil
}
