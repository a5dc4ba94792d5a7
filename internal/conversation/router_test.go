package conversation

import (
	"testing"
	"time"

	"vist/pkg/protocol"
)

type recordingNarrator struct {
	texts []string
}

func (n *recordingNarrator) Narrate(text string) {
	n.texts = append(n.texts, text)
}

func fixedClock() Clock {
	return Clock{Now: func() time.Time { return time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC) }}
}

func newTestRouter() (*Router, *Store, *recordingNarrator) {
	store := NewStore()
	narrator := &recordingNarrator{}
	return NewRouter(store, narrator, WithClock(fixedClock())), store, narrator
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"Assistant: hello":  "hello",
		"  User   hi there ": "hi there",
		"Assistant":         "",
		"Users are great":   "Users are great",
		"plain":             "plain",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouteChatAppendsAndNarrates(t *testing.T) {
	r, store, narrator := newTestRouter()

	out := r.Route(protocol.Record{Kind: protocol.KindChat, Type: "chat", Content: "Assistant: Xin chào"})

	if out.Action != Appended || out.Message.Variant != AITextStatic || out.Message.Text != "Xin chào" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Message.Time != "09:30" {
		t.Fatalf("expected formatted time, got %q", out.Message.Time)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", store.Len())
	}
	if len(narrator.texts) != 1 || narrator.texts[0] != "Xin chào" {
		t.Fatalf("unexpected narration %v", narrator.texts)
	}
}

func TestRouteImageStartThenImageMutatesPlaceholder(t *testing.T) {
	r, store, narrator := newTestRouter()

	start := r.Route(protocol.Record{Kind: protocol.KindImageStart, Content: "a cat"})
	if start.Message.Variant != AIImageLoading {
		t.Fatalf("expected loading placeholder, got %s", start.Message.Variant)
	}
	if id, ok := r.Pending(); !ok || id != start.Message.ID {
		t.Fatalf("expected pending placeholder %s", start.Message.ID)
	}

	r.Route(protocol.Record{Kind: protocol.KindChat, Content: "drawing"})
	done := r.Route(protocol.Record{Kind: protocol.KindImage, Content: "http://h/data/cat.png"})

	if done.Action != Resolved || done.Message.ID != start.Message.ID {
		t.Fatalf("expected placeholder resolved in place, got %+v", done)
	}
	msgs := store.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Variant != AIImageResult || msgs[0].ImageURL != "http://h/data/cat.png" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	images := 0
	for _, m := range msgs {
		if m.Variant == AIImageResult || m.Variant == AIImageLoading {
			images++
		}
	}
	if images != 1 {
		t.Fatalf("expected exactly one image message, got %d", images)
	}
	if _, ok := r.Pending(); ok {
		t.Fatalf("pending marker should be cleared")
	}
	if len(narrator.texts) != 1 {
		t.Fatalf("image records must not be narrated, got %v", narrator.texts)
	}
}

func TestRouteImageWithoutStartAppends(t *testing.T) {
	r, store, _ := newTestRouter()

	out := r.Route(protocol.Record{Kind: protocol.KindImage, Content: "x.png"})

	if out.Action != Appended || out.Message.Variant != AIImageResult {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one message, got %d", store.Len())
	}
}

func TestRouteOtherKindsUseTextPath(t *testing.T) {
	r, store, narrator := newTestRouter()

	r.Route(protocol.Record{Kind: protocol.KindOther, Type: "realtime", Content: "It is sunny"})
	r.Route(protocol.Record{Kind: protocol.KindOther, Type: "action", Content: `{"ok":true}`, Structured: true})
	r.Route(protocol.Record{Kind: protocol.KindOther, Type: "error", Content: ""})

	if store.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", store.Len())
	}
	if len(narrator.texts) != 2 || narrator.texts[1] != `{"ok":true}` {
		t.Fatalf("unexpected narration %v", narrator.texts)
	}
}

func TestFinishExpiresPendingPlaceholder(t *testing.T) {
	r, store, _ := newTestRouter()

	start := r.Route(protocol.Record{Kind: protocol.KindImageStart})
	out := r.Finish()

	if out.Action != Expired || out.Message.ID != start.Message.ID {
		t.Fatalf("unexpected outcome %+v", out)
	}
	m, _ := store.Get(start.Message.ID)
	if m.Variant != AITextStatic || m.Text != UndeliveredImageText {
		t.Fatalf("placeholder not converted: %+v", m)
	}
	if again := r.Finish(); again.Action != Nothing {
		t.Fatalf("second finish should be a no-op, got %+v", again)
	}
}

func TestSecondImageStartExpiresFirst(t *testing.T) {
	r, store, _ := newTestRouter()

	first := r.Route(protocol.Record{Kind: protocol.KindImageStart})
	second := r.Route(protocol.Record{Kind: protocol.KindImageStart})

	if m, _ := store.Get(first.Message.ID); m.Variant != AITextStatic {
		t.Fatalf("first placeholder should expire, got %s", m.Variant)
	}
	if id, _ := r.Pending(); id != second.Message.ID {
		t.Fatalf("expected second placeholder pending")
	}
	if out := r.Expire(first.Message.ID); out.Action != Nothing {
		t.Fatalf("expiring a stale id must do nothing")
	}
	if out := r.Expire(second.Message.ID); out.Action != Expired {
		t.Fatalf("expected the pending placeholder to expire")
	}
}

func TestImageURLRewrite(t *testing.T) {
	store := NewStore()
	r := NewRouter(store, nil, WithImageURL(func(ref string) string { return "http://backend/data/" + FileName(ref) }))

	out := r.Route(protocol.Record{Kind: protocol.KindImage, Content: " /tmp/out/cat.png "})
	if out.Message.ImageURL != "http://backend/data/cat.png" {
		t.Fatalf("unexpected url %q", out.Message.ImageURL)
	}
}
