package server

import (
	"io"
	"net/http"
	"sync"
)

// Emitter streams raw text chunks to the client. Output is plain text
// with no envelope and no completion sentinel; the stream simply closes
// when the answer is done. End is idempotent, so the handler can defer
// it once and every exit path terminates the stream exactly once.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	once    sync.Once
}

// NewEmitter wraps a response writer for streaming.
func NewEmitter(w http.ResponseWriter) *Emitter {
	flusher, _ := w.(http.Flusher)
	return &Emitter{w: w, flusher: flusher}
}

// Write sends one chunk to the client and flushes it. Write errors are
// not reported: a vanished client is observed through the request
// context, not through the emitter.
func (e *Emitter) Write(text string) {
	if text == "" {
		return
	}
	e.start()
	_, _ = io.WriteString(e.w, text)
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// End terminates the stream. Safe to call more than once; only the
// first call has effect. A stream that was never written to still gets
// its headers, so the client observes an empty 200 body.
func (e *Emitter) End() {
	e.once.Do(func() {
		e.start()
		if e.flusher != nil {
			e.flusher.Flush()
		}
	})
}

func (e *Emitter) start() {
	if e.started {
		return
	}
	e.started = true
	e.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	e.w.WriteHeader(http.StatusOK)
}
