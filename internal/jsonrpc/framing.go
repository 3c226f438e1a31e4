// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// contentLengthHeader is the only header the framing protocol requires.
const contentLengthHeader = "Content-Length"

// FramingError indicates a malformed frame: a bad header line, an
// unparseable Content-Length, or a body that is not valid JSON.
// The stream remains usable after a FramingError; the reader is
// positioned to resynchronize at the next header it can find.
type FramingError struct {
	// Reason describes what was malformed.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Cause)
	}
	return "framing error: " + e.Reason
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *FramingError) Unwrap() error {
	return e.Cause
}

// Encode serializes msg to compact JSON and prefixes it with the
// Content-Length header. The result is one complete frame.
func Encode(msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal frame body: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(body) + 32)
	fmt.Fprintf(&sb, "%s: %d\r\n\r\n", contentLengthHeader, len(body))
	sb.Write(body)
	return []byte(sb.String()), nil
}

// Writer encodes JSON-RPC messages as Content-Length framed bytes.
// Writer is not safe for concurrent use; callers serialize writes.
type Writer struct {
	w io.Writer
}

// NewWriter creates a frame writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits one complete frame containing msg.
func (w *Writer) Write(msg any) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Reader decodes Content-Length framed JSON messages from a byte stream.
//
// The producer may deliver bytes in arbitrary chunk sizes, down to one
// byte per read; the Reader buffers across calls and never assumes a
// single read returns a full frame. Reader is not safe for concurrent
// use; a transport owns exactly one reading goroutine.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a frame reader on top of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read consumes exactly one frame and returns its raw JSON body.
//
// A malformed header, unparseable length, or invalid JSON body yields a
// *FramingError with the offending bytes consumed, so a subsequent Read
// resumes scanning from the next header. io.EOF is returned unwrapped
// when the stream ends cleanly between frames.
func (r *Reader) Read() (json.RawMessage, error) {
	length, err := r.readHeader()
	if err != nil {
		return nil, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	if !json.Valid(body) {
		return nil, &FramingError{Reason: fmt.Sprintf("frame body is not valid JSON: %q", truncateForError(body))}
	}

	return json.RawMessage(body), nil
}

// readHeader consumes the header block up to and including the blank
// line, returning the parsed Content-Length value.
func (r *Reader) readHeader() (int, error) {
	length := -1
	sawHeader := false

	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && !sawHeader {
				return 0, io.EOF
			}
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, fmt.Errorf("read frame header: %w", err)
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			// Blank line terminates the header block.
			if length < 0 {
				return 0, &FramingError{Reason: "header block missing Content-Length"}
			}
			return length, nil
		}
		sawHeader = true

		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return 0, &FramingError{Reason: fmt.Sprintf("malformed header line %q", trimmed)}
		}

		if !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			// Tolerate and ignore headers other than Content-Length.
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, &FramingError{Reason: fmt.Sprintf("unparseable Content-Length %q", strings.TrimSpace(value)), Cause: err}
		}
		length = n
	}
}

// truncateForError bounds body excerpts included in error messages.
func truncateForError(b []byte) string {
	const max = 64
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
