// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
package agent

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// readChunkSize is the size of a single read from the response body.
const readChunkSize = 32 * 1024

var errMalformed = errors.New("malformed record")

// =============================================================================
// RECORD STREAM
// =============================================================================

// RecordStream reads records from a live agent response. Next must be called
// from a single goroutine; Close and Stats are safe from any goroutine.
type RecordStream struct {
	body   io.ReadCloser
	cancel func()
	logger logrus.FieldLogger

	framer  *LineFramer
	buf     []byte
	pending [][]byte
	eof     bool
	readErr error

	mu    sync.Mutex
	stats StreamStats

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewRecordStream wraps body. cancel, if non-nil, is called on Close to
// abort the request that produced body.
func NewRecordStream(body io.ReadCloser, cancel func(), logger logrus.FieldLogger) *RecordStream {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RecordStream{
		body:   body,
		cancel: cancel,
		logger: logger,
		framer: NewLineFramer(MaxLineSize),
		buf:    make([]byte, readChunkSize),
	}
}

// Next returns the next record. It returns io.EOF when the stream ended
// cleanly, ErrStreamClosed after Close, and a *StreamError when the
// connection dropped. Blank and malformed lines are skipped.
func (s *RecordStream) Next() (Record, error) {
	for {
		if s.closed.Load() {
			return Record{}, ErrStreamClosed
		}

		if len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]

			rec, err := s.decode(line)
			if err != nil {
				continue
			}
			return rec, nil
		}

		if s.readErr != nil {
			return Record{}, s.readErr
		}
		if s.eof {
			return Record{}, io.EOF
		}

		s.fill()
	}
}

// fill performs one read and frames whatever arrived.
func (s *RecordStream) fill() {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		lines, ferr := s.framer.Push(s.buf[:n])
		if ferr != nil {
			s.mu.Lock()
			s.stats.Oversized++
			s.mu.Unlock()
			s.logger.WithError(ferr).Debug("dropping oversized stream line")
		}
		s.pending = append(s.pending, lines...)
	}
	if err == nil {
		return
	}

	switch {
	case s.closed.Load():
		// Next reports ErrStreamClosed.
	case errors.Is(err, io.EOF):
		if tail := s.framer.Flush(); tail != nil {
			s.pending = append(s.pending, tail)
		}
		s.eof = true
	default:
		s.mu.Lock()
		received := s.stats.Records
		s.mu.Unlock()
		s.readErr = &StreamError{Records: received, Err: err}
	}
}

// decode turns one line into a Record.
func (s *RecordStream) decode(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, errMalformed
	}

	s.mu.Lock()
	s.stats.Lines++
	s.mu.Unlock()

	rec, err := ParseRecord(line)
	if err != nil {
		s.mu.Lock()
		s.stats.Malformed++
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"line_bytes": len(line),
		}).WithError(err).Debug("skipping malformed stream line")
		return Record{}, err
	}

	s.mu.Lock()
	s.stats.Records++
	s.mu.Unlock()
	return rec, nil
}

// Close releases the response body. It is idempotent and may be called
// while Next is blocked in another goroutine.
func (s *RecordStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *RecordStream) Closed() bool {
	return s.closed.Load()
}

// Stats returns a snapshot of the stream counters.
func (s *RecordStream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// =============================================================================
// RECORD DECODING
// =============================================================================

// ParseRecord decodes a single JSON line. The line must be a JSON object.
// A non-string data field decodes as empty. Metadata values of any JSON type
// are kept in their string form.
func ParseRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return Record{}, errMalformed
	}
	res := gjson.ParseBytes(line)
	if !res.IsObject() {
		return Record{}, errMalformed
	}

	rec := Record{
		DataType: res.Get("data_type").String(),
		Metadata: map[string]string{},
	}
	if data := res.Get("data"); data.Type == gjson.String {
		rec.Data = data.Str
	}
	if md := res.Get("metadata"); md.IsObject() {
		md.ForEach(func(key, value gjson.Result) bool {
			rec.Metadata[key.String()] = value.String()
			return true
		})
	}
	return rec, nil
}
