package protocol

import (
	"errors"
	"testing"
)

func TestDecodeRecordContentShapes(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		kind       Kind
		tag        string
		content    string
		structured bool
	}{
		{name: "chat", line: `{"type":"chat","content":"xin chào"}`, kind: KindChat, tag: "chat", content: "xin chào"},
		{name: "missing content", line: `{"type":"image-start"}`, kind: KindImageStart, tag: "image-start"},
		{name: "null content", line: `{"type":"image","content":null}`, kind: KindImage, tag: "image"},
		{name: "unknown tag", line: `{"type":"realtime","content":"12:00"}`, kind: KindOther, tag: "realtime", content: "12:00"},
		{name: "object content", line: `{"type":"action","content":{ "ok": true }}`, kind: KindOther, tag: "action", content: `{"ok":true}`, structured: true},
		{name: "number content", line: `{"type":"chat","content":42}`, kind: KindChat, tag: "chat", content: "42", structured: true},
		{name: "no tag", line: `{}`, kind: KindOther},
		{name: "number tag", line: `{"type":5,"content":"B"}`, kind: KindOther, tag: "5", content: "B"},
		{name: "object tag", line: `{"type":{"k": "chat"},"content":"B"}`, kind: KindOther, tag: `{"k":"chat"}`, content: "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeRecord([]byte(tt.line))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rec.Kind != tt.kind || rec.Type != tt.tag || rec.Content != tt.content || rec.Structured != tt.structured {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestDecodeRecordRejectsNonObjects(t *testing.T) {
	for _, line := range []string{`"text"`, `[1]`, `true`} {
		if _, err := DecodeRecord([]byte(line)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", line, err)
		}
	}
	if _, err := DecodeRecord([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestRecordEncodeKeepsTag(t *testing.T) {
	line, err := Record{Kind: KindOther, Type: "realtime", Content: "sunny"}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(line) != "{\"type\":\"realtime\",\"content\":\"sunny\"}\n" {
		t.Fatalf("unexpected line %q", line)
	}

	rec, err := DecodeRecord(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Type != "realtime" || rec.Content != "sunny" {
		t.Fatalf("unexpected record %+v", rec)
	}
}
