package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vist/internal/backend"
	"vist/internal/conversation"
	"vist/internal/orb"
	"vist/internal/speech"
	"vist/pkg/protocol"
	"vist/pkg/stt"
)

type fakeSpeaker struct {
	mu      sync.Mutex
	texts   []string
	pending []func(error)
	auto    bool
}

func (f *fakeSpeaker) Narrate(text string, onComplete func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.auto {
		go onComplete(nil)
		return
	}
	f.pending = append(f.pending, onComplete)
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, cb := range pending {
		if cb != nil {
			go cb(speech.ErrStopped)
		}
	}
}

func (f *fakeSpeaker) Close() { f.Stop() }

// finish completes the oldest pending narration.
func (f *fakeSpeaker) finish(t *testing.T, err error) {
	t.Helper()
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		t.Fatalf("no pending narration")
	}
	cb := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	cb(err)
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type recResult struct {
	text string
	err  error
}

type fakeRecognizer struct {
	results chan recResult
}

func (f *fakeRecognizer) Recognize(ctx context.Context, onListening func()) (string, error) {
	if onListening != nil {
		onListening()
	}
	select {
	case r := <-f.results:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeServer struct {
	process  http.HandlerFunc
	requests atomic.Int32

	mu      sync.Mutex
	history []protocol.HistoryEntry
}

func (s *fakeServer) setHistory(h []protocol.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/set_current_user":
		_ = json.NewEncoder(w).Encode(protocol.StatusResponse{Status: "ok"})
	case "/api/process":
		s.requests.Add(1)
		s.process(w, r)
	case "/api/chat_history":
		s.mu.Lock()
		history := s.history
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(protocol.HistoryResponse{History: history})
	case "/api/analyze_image":
		_ = json.NewEncoder(w).Encode(protocol.AnalyzeImageResponse{Description: "Assistant: A cat on a sofa."})
	default:
		http.NotFound(w, r)
	}
}

func ndjson(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			_, _ = io.WriteString(w, l+"\n")
		}
	}
}

type harness struct {
	a       *Assistant
	speaker *fakeSpeaker
	rec     *fakeRecognizer
	server  *fakeServer
	url     string
}

func start(t *testing.T, uid string, process http.HandlerFunc, tweak func(*Options)) *harness {
	t.Helper()
	fs := &fakeServer{process: process}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	client, err := backend.New(srv.URL, uid, srv.Client())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}

	h := &harness{
		speaker: &fakeSpeaker{},
		rec:     &fakeRecognizer{results: make(chan recResult, 1)},
		server:  fs,
		url:     srv.URL,
	}
	opts := Options{
		Backend:    client,
		Speaker:    h.speaker,
		Recognizer: h.rec,
		Clock:      conversation.Clock{Now: func() time.Time { return time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC) }},
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.a, err = New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, a *Assistant, want orb.State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return a.State() == want })
}

func lastMessage(a *Assistant) conversation.Message {
	msgs := a.Messages()
	return msgs[len(msgs)-1]
}

func TestTypedTurnScenario(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"chat","content":"Assistant: Xin chào! Tôi có thể giúp gì?"}`), nil)

	events, cancel := h.a.Subscribe()
	defer cancel()

	if err := h.a.Submit("xin chào"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, h.a, orb.Speaking)

	msgs := h.a.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected greeting, user and reply, got %+v", msgs)
	}
	if msgs[1].Variant != conversation.UserText || msgs[1].Text != "xin chào" {
		t.Fatalf("unexpected user message %+v", msgs[1])
	}
	if msgs[2].Variant != conversation.AITextStatic || msgs[2].Text != "Xin chào! Tôi có thể giúp gì?" {
		t.Fatalf("unexpected reply %+v", msgs[2])
	}
	if msgs[2].Time != "09:30" {
		t.Fatalf("unexpected time %q", msgs[2].Time)
	}

	h.speaker.finish(t, nil)
	waitState(t, h.a, orb.Idle)

	var states []orb.State
	timeout := time.After(time.Second)
	for len(states) < 3 {
		select {
		case ev := <-events:
			if ev.Type == EventState {
				states = append(states, ev.State)
			}
		case <-timeout:
			t.Fatalf("missing state events, got %v", states)
		}
	}
	want := []orb.State{orb.Processing, orb.Speaking, orb.Idle}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: got %v want %v", i, states[i], want[i])
		}
	}
	if got := h.speaker.spoken(); len(got) != 1 || got[0] != "Xin chào! Tôi có thể giúp gì?" {
		t.Fatalf("unexpected narration %v", got)
	}
}

func TestNarrationFailureStillEndsIdle(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"chat","content":"hello"}`), nil)

	if err := h.a.Submit("hi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, h.a, orb.Speaking)
	h.speaker.finish(t, errors.New("no audio device"))
	waitState(t, h.a, orb.Idle)
}

func TestStaleNarrationCompletionIgnored(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"chat","content":"first answer"}`), nil)

	if err := h.a.Submit("first"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, h.a, orb.Speaking)

	// Grab the first completion before Listen stops the speaker.
	h.speaker.mu.Lock()
	stale := h.speaker.pending[0]
	h.speaker.pending = nil
	h.speaker.mu.Unlock()

	if err := h.a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	waitState(t, h.a, orb.Listening)

	stale(nil)
	time.Sleep(50 * time.Millisecond)
	if got := h.a.State(); got != orb.Listening {
		t.Fatalf("stale completion changed state to %v", got)
	}
}

func TestVoiceTurn(t *testing.T) {
	var got protocol.ProcessRequest
	var mu sync.Mutex
	h := start(t, "u1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		ndjson(`{"type":"chat","content":"It is sunny."}`)(w, r)
	}, nil)

	events, cancel := h.a.Subscribe()
	defer cancel()

	if err := h.a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := h.a.Listen(); !errors.Is(err, stt.ErrBusy) {
		t.Fatalf("second listen: expected stt.ErrBusy, got %v", err)
	}
	h.rec.results <- recResult{text: "what's the weather"}
	waitState(t, h.a, orb.Speaking)

	mu.Lock()
	if got.Text != "what's the weather" || got.UID != "u1" {
		t.Fatalf("unexpected request %+v", got)
	}
	mu.Unlock()

	sawTranscript := false
	for !sawTranscript {
		select {
		case ev := <-events:
			sawTranscript = ev.Type == EventTranscript && ev.Text == "what's the weather"
		case <-time.After(time.Second):
			t.Fatalf("no transcript event")
		}
	}
}

func TestEmptyRecognitionReturnsIdle(t *testing.T) {
	h := start(t, "u1", ndjson(), nil)

	if err := h.a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	h.rec.results <- recResult{err: stt.ErrNoSpeech}
	waitState(t, h.a, orb.Idle)

	if n := len(h.a.Messages()); n != 1 {
		t.Fatalf("no-speech must be silent, log has %d messages", n)
	}
	if h.server.requests.Load() != 0 {
		t.Fatalf("no request expected")
	}
}

func TestPermissionDeniedIsSurfaced(t *testing.T) {
	h := start(t, "u1", ndjson(), nil)
	events, cancel := h.a.Subscribe()
	defer cancel()

	if err := h.a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	h.rec.results <- recResult{err: stt.ErrPermissionDenied}
	waitState(t, h.a, orb.Idle)

	waitFor(t, "permission message", func() bool { return lastMessage(h.a).Text == PermissionDeniedText })
	for {
		select {
		case ev := <-events:
			if ev.Type == EventNotice {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("no notice event")
		}
	}
}

func TestNotSignedIn(t *testing.T) {
	h := start(t, "", ndjson(), nil)

	if err := h.a.Submit("hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := lastMessage(h.a); got.Text != NotSignedInText {
		t.Fatalf("expected not signed in notice, got %+v", got)
	}
	if h.a.State() != orb.Idle || h.server.requests.Load() != 0 {
		t.Fatalf("no request must be made")
	}
}

func TestBusyWhileRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	h := start(t, "u1", func(w http.ResponseWriter, r *http.Request) {
		<-release
		ndjson(`{"type":"chat","content":"done"}`)(w, r)
	}, nil)
	defer close(release)

	if err := h.a.Submit("one"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.a.Submit("two"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestBackendErrorIsVisible(t *testing.T) {
	h := start(t, "u1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, nil)

	if err := h.a.Submit("hi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "error message", func() bool { return lastMessage(h.a).Text == BackendErrorText })
	waitState(t, h.a, orb.Idle)
}

func TestImagePlaceholderResolved(t *testing.T) {
	h := start(t, "u1", ndjson(
		`{"type":"chat","content":"Here you go"}`,
		`{"type":"image-start","content":"drawing"}`,
		`{"type":"image","content":"/srv/data/cat.png"}`,
	), nil)

	if err := h.a.Submit("draw a cat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitState(t, h.a, orb.Speaking)

	msgs := h.a.Messages()
	last := msgs[len(msgs)-1]
	if last.Variant != conversation.AIImageResult || last.ImageURL != h.url+"/data/cat.png" {
		t.Fatalf("unexpected image message %+v", last)
	}
	for _, m := range msgs {
		if m.Variant == conversation.AIImageLoading {
			t.Fatalf("placeholder left behind: %+v", msgs)
		}
	}
}

func TestImagePlaceholderNotDelivered(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"image-start","content":""}`), nil)

	if err := h.a.Submit("draw"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "placeholder expired", func() bool {
		return lastMessage(h.a).Text == conversation.UndeliveredImageText
	})
	waitState(t, h.a, orb.Idle)
}

func TestImageTimeoutWhileStreamOpen(t *testing.T) {
	release := make(chan struct{})
	h := start(t, "u1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"image-start","content":""}`+"\n")
		w.(http.Flusher).Flush()
		<-release
	}, func(o *Options) { o.ImageTimeout = 30 * time.Millisecond })
	defer close(release)

	if err := h.a.Submit("draw"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "placeholder timeout", func() bool {
		return lastMessage(h.a).Text == conversation.UndeliveredImageText
	})
}

func TestSubmitQuietDoesNotNarrate(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"chat","content":"quiet reply"}`), nil)
	events, cancel := h.a.Subscribe()
	defer cancel()

	if err := h.a.SubmitQuiet("hi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for {
		select {
		case ev := <-events:
			if ev.Type == EventRecord {
				if ev.Record.Content != "quiet reply" {
					t.Fatalf("unexpected record %+v", ev.Record)
				}
				waitState(t, h.a, orb.Idle)
				if len(h.speaker.spoken()) != 0 {
					t.Fatalf("quiet turn must not narrate")
				}
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("no record event")
		}
	}
}

func TestNarrateEachSpeaksEveryRecord(t *testing.T) {
	h := start(t, "u1", ndjson(
		`{"type":"chat","content":"one"}`,
		`{"type":"chat","content":"two"}`,
	), func(o *Options) { o.Narration = NarrateEach })
	h.speaker.auto = true

	if err := h.a.Submit("count"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "two narrations", func() bool { return len(h.speaker.spoken()) == 2 })
	waitState(t, h.a, orb.Idle)
}

func TestSayAndStop(t *testing.T) {
	h := start(t, "u1", ndjson(), nil)

	if err := h.a.Say("reminder: drink water"); err != nil {
		t.Fatalf("say: %v", err)
	}
	waitState(t, h.a, orb.Speaking)
	if err := h.a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitState(t, h.a, orb.Idle)
}

func TestSayWithoutSpeaker(t *testing.T) {
	h := start(t, "u1", ndjson(), func(o *Options) { o.Speaker = nil })

	if err := h.a.Say("hello"); !errors.Is(err, ErrNoSpeaker) {
		t.Fatalf("expected ErrNoSpeaker, got %v", err)
	}
	if s := h.a.State(); s != orb.Idle {
		t.Fatalf("state changed to %v", s)
	}
}

func TestContinuousModeListensAgain(t *testing.T) {
	h := start(t, "u1", ndjson(`{"type":"chat","content":"ok"}`), func(o *Options) { o.Continuous = true })

	if err := h.a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	h.rec.results <- recResult{text: "hello"}
	waitState(t, h.a, orb.Speaking)
	h.speaker.finish(t, nil)
	waitState(t, h.a, orb.Listening)
}

func TestAnalyzeImage(t *testing.T) {
	h := start(t, "u1", ndjson(), nil)
	img := filepath.Join(t.TempDir(), "cat.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := h.a.AnalyzeImage(img, ""); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	waitState(t, h.a, orb.Speaking)

	msgs := h.a.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected greeting, image and description, got %+v", msgs)
	}
	if msgs[1].Variant != conversation.UserImageWithText || msgs[1].Text != conversation.DefaultImagePrompt {
		t.Fatalf("unexpected user image message %+v", msgs[1])
	}
	if msgs[2].Text != "A cat on a sofa." {
		t.Fatalf("unexpected description %+v", msgs[2])
	}
}

func TestLoadHistoryReplacesGreeting(t *testing.T) {
	h := start(t, "u1", ndjson(), nil)
	h.server.setHistory([]protocol.HistoryEntry{
		{Type: protocol.HistoryText, Role: "assistant", Content: "Hello", Time: "10:00"},
		{Type: protocol.HistoryText, Role: "user", Content: "Hi", Time: "10:00"},
	})

	n, err := h.a.LoadHistory(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := h.a.Messages()
	if n != 2 || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d %+v", n, msgs)
	}
	if msgs[0].Variant != conversation.UserText {
		t.Fatalf("user message must sort first on equal time: %+v", msgs)
	}
}

func TestLoadEmptyHistoryKeepsGreeting(t *testing.T) {
	h := start(t, "u1", ndjson(), func(o *Options) { o.DisplayName = "Lan" })

	if _, err := h.a.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := h.a.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Lan") {
		t.Fatalf("greeting should remain, got %+v", msgs)
	}
}

func TestParseNarrationMode(t *testing.T) {
	if m, err := ParseNarrationMode(""); err != nil || m != NarrateJoined {
		t.Fatalf("empty should default to joined")
	}
	if m, err := ParseNarrationMode("Each"); err != nil || m != NarrateEach {
		t.Fatalf("expected each, got %v %v", m, err)
	}
	if _, err := ParseNarrationMode("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
