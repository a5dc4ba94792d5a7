// Package protocol holds the wire types spoken between the assistant client,
// the remote backend and the desktop shell.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the tag of a StreamRecord.
type Kind string

const (
	KindChat       Kind = "chat"
	KindImageStart Kind = "image-start"
	KindImage      Kind = "image"
	// KindOther covers every tag the client has no dedicated handling for
	// (realtime, screen, vision, call, action, error, ...). Record.Type keeps
	// the original tag.
	KindOther Kind = "other"
)

// ErrMalformed is returned for lines that are JSON but not a record object.
var ErrMalformed = errors.New("malformed record")

// Record is one decoded line of a chat response.
type Record struct {
	Kind Kind
	// Type is the tag exactly as sent by the backend.
	Type string
	// Content is the payload as text. Non-string payloads are kept as
	// their compact JSON encoding.
	Content string
	// Structured reports whether Content came from a non-string JSON value.
	Structured bool
}

type wireRecord struct {
	Type    json.RawMessage `json:"type"`
	Content json.RawMessage `json:"content"`
}

// KindOf maps a backend tag to a Kind.
func KindOf(tag string) Kind {
	switch Kind(tag) {
	case KindChat, KindImageStart, KindImage:
		return Kind(tag)
	default:
		return KindOther
	}
}

// DecodeRecord parses a single NDJSON line.
func DecodeRecord(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		if json.Valid(line) {
			return Record{}, fmt.Errorf("%w: not an object", ErrMalformed)
		}
	}

	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, err
	}

	tag, err := decodeTag(w.Type)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Kind: KindOf(tag), Type: tag}

	raw := bytes.TrimSpace(w.Content)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &rec.Content); err != nil {
			return Record{}, err
		}
	default:
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return Record{}, err
		}
		rec.Content = compact.String()
		rec.Structured = true
	}

	return rec, nil
}

// decodeTag returns a string tag as is. Any other JSON value is kept in its
// compact encoding, which never matches a known kind.
func decodeTag(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", nil
	case raw[0] == '"':
		var tag string
		err := json.Unmarshal(raw, &tag)
		return tag, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", err
	}
	return compact.String(), nil
}

// Encode renders the record as a single NDJSON line including the newline.
func (r Record) Encode() ([]byte, error) {
	tag := r.Type
	if tag == "" {
		tag = string(r.Kind)
	}

	var content json.RawMessage
	if r.Structured && json.Valid([]byte(r.Content)) {
		content = json.RawMessage(r.Content)
	} else {
		b, err := json.Marshal(r.Content)
		if err != nil {
			return nil, err
		}
		content = b
	}

	rawTag, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(wireRecord{Type: rawTag, Content: content})
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %s", r.Type, previewText(r.Content, 80))
}

func previewText(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}
