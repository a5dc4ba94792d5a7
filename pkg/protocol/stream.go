package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	log "log/slog"
	"strings"
)

// DecodeError carries the line that failed to decode.
type DecodeError struct {
	line []byte
	err  error
}

func (e *DecodeError) Error() string {
	if e == nil || e.err == nil {
		return "ndjson decode error"
	}
	return "ndjson decode: " + e.err.Error()
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *DecodeError) Line() []byte {
	if e == nil {
		return nil
	}
	return e.line
}

// Stream incrementally decodes a newline-delimited JSON response body.
//
// Partial lines are buffered across reads. A line that does not decode is
// dropped and reported through the OnSkip hook, the stream keeps going. A
// trailing line without a terminating newline is never decoded.
type Stream struct {
	reader  *bufio.Reader
	onSkip  func(*DecodeError)
	done    bool
	skipped int
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithSkipHandler replaces the default warning log for dropped lines.
func WithSkipHandler(fn func(*DecodeError)) StreamOption {
	return func(s *Stream) {
		s.onSkip = fn
	}
}

func NewStream(r io.Reader, opts ...StreamOption) *Stream {
	s := &Stream{
		reader: bufio.NewReader(r),
		onSkip: logSkipped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next record. It returns io.EOF once the body is
// exhausted; the stream cannot be restarted.
func (s *Stream) Next(ctx context.Context) (Record, error) {
	for {
		if s.done {
			return Record{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				if len(bytes.TrimSpace(line)) > 0 {
					log.Debug("dropping unterminated trailing line", "bytes", len(line))
				}
				return Record{}, io.EOF
			}
			return Record{}, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		rec, decodeErr := DecodeRecord(line)
		if decodeErr != nil {
			s.skipped++
			if s.onSkip != nil {
				s.onSkip(&DecodeError{line: append([]byte(nil), line...), err: decodeErr})
			}
			continue
		}
		return rec, nil
	}
}

// Skipped reports how many lines were dropped so far.
func (s *Stream) Skipped() int {
	return s.skipped
}

// ParseAll decodes a fully buffered body.
func ParseAll(body string, opts ...StreamOption) []Record {
	s := NewStream(strings.NewReader(body), opts...)
	var out []Record
	for {
		rec, err := s.Next(context.Background())
		if err != nil {
			return out
		}
		out = append(out, rec)
	}
}

func logSkipped(err *DecodeError) {
	log.Warn("skipping malformed stream line", "err", err.Unwrap(), "line", previewText(string(err.Line()), 120))
}
