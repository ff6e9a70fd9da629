// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
package agent

import (
	"bytes"
)

// MaxLineSize is the largest stream line accepted (1MB).
const MaxLineSize = 1 << 20

// LineFramer splits a byte stream into newline-terminated lines. Chunks may
// end anywhere, including inside a multi-byte character; incomplete tails
// are held until the next Push.
type LineFramer struct {
	buf        []byte
	max        int
	discarding bool
}

// NewLineFramer creates a framer that rejects lines longer than max bytes.
// A max of zero or less means MaxLineSize.
func NewLineFramer(max int) *LineFramer {
	if max <= 0 {
		max = MaxLineSize
	}
	return &LineFramer{max: max}
}

// Push appends chunk and returns every complete line, without its newline
// or a trailing carriage return. Lines over the size limit are dropped up to
// the next newline and reported as a *FrameError alongside the good lines.
func (f *LineFramer) Push(chunk []byte) ([][]byte, error) {
	var (
		lines [][]byte
		ferr  error
	)

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if !f.discarding {
				f.buf = append(f.buf, chunk...)
				if len(f.buf) > f.max {
					ferr = &FrameError{Size: len(f.buf), Err: ErrLineTooLong}
					f.buf = f.buf[:0]
					f.discarding = true
				}
			}
			break
		}

		part := chunk[:i]
		chunk = chunk[i+1:]

		if f.discarding {
			f.discarding = false
			continue
		}

		if len(f.buf)+len(part) > f.max {
			ferr = &FrameError{Size: len(f.buf) + len(part), Err: ErrLineTooLong}
			f.buf = f.buf[:0]
			continue
		}

		line := make([]byte, 0, len(f.buf)+len(part))
		line = append(line, f.buf...)
		line = append(line, part...)
		f.buf = f.buf[:0]
		lines = append(lines, bytes.TrimSuffix(line, []byte("\r")))
	}

	return lines, ferr
}

// Flush returns the unterminated tail left at end of stream, or nil.
func (f *LineFramer) Flush() []byte {
	defer func() {
		f.buf = f.buf[:0]
		f.discarding = false
	}()
	if f.discarding || len(f.buf) == 0 {
		return nil
	}
	line := make([]byte, len(f.buf))
	copy(line, f.buf)
	return bytes.TrimSuffix(line, []byte("\r"))
}

// Buffered returns the number of bytes held for an incomplete line.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}
