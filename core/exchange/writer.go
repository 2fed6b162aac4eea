package exchange

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
)

// commitWriter calls onCommit once, right before the response headers are sent.
// When onCommit fails the handler's status and body are discarded: the failure
// response was already rendered on the underlying writer.
type commitWriter struct {
	http.ResponseWriter
	onCommit func() error
	once     sync.Once

	mu        sync.Mutex
	written   bool
	commitErr error
}

func newCommitWriter(w http.ResponseWriter, onCommit func() error) *commitWriter {
	return &commitWriter{ResponseWriter: w, onCommit: onCommit}
}

// commit runs onCommit on the first call and returns its error on every call.
func (w *commitWriter) commit() error {
	w.once.Do(func() {
		err := w.onCommit()
		w.mu.Lock()
		w.commitErr = err
		if err != nil {
			w.written = true
		}
		w.mu.Unlock()
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitErr
}

func (w *commitWriter) markWritten() {
	w.mu.Lock()
	w.written = true
	w.mu.Unlock()
}

func (w *commitWriter) WriteHeader(status int) {
	// Informational responses do not finalize the headers.
	if status >= 100 && status < 200 && status != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(status)
		return
	}
	if w.commit() != nil {
		return
	}
	w.markWritten()
	w.ResponseWriter.WriteHeader(status)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if err := w.commit(); err != nil {
		return 0, err
	}
	w.markWritten()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	if w.commit() != nil {
		return
	}
	w.markWritten()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *commitWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("exchange: underlying ResponseWriter does not support hijacking")
	}
	if err := w.commit(); err != nil {
		return nil, nil, err
	}
	w.markWritten()
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Written reports whether the response headers were sent.
func (w *commitWriter) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
