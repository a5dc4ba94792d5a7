package shell

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vist/internal/assistant"
	"vist/internal/orb"
	"vist/pkg/protocol"
	"vist/pkg/stt"
)

type fakeAssistant struct {
	mu     sync.Mutex
	calls  []string
	events chan assistant.Event
	listen error
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{events: make(chan assistant.Event, 16)}
}

func (f *fakeAssistant) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAssistant) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAssistant) SubmitQuiet(text string) error { f.record("submit:" + text); return nil }
func (f *fakeAssistant) Say(text string) error         { f.record("say:" + text); return nil }
func (f *fakeAssistant) Listen() error                 { f.record("listen"); return f.listen }
func (f *fakeAssistant) StopListening() error          { f.record("stop-listening"); return nil }
func (f *fakeAssistant) Stop() error                   { f.record("stop"); return nil }

func (f *fakeAssistant) Subscribe() (<-chan assistant.Event, func()) {
	out := make(chan assistant.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-f.events:
				out <- ev
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitCalls(t *testing.T, f *fakeAssistant, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.called(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d calls, got %v", n, f.called())
	return nil
}

func TestTasksReachAssistant(t *testing.T) {
	f := newFakeAssistant()
	conn := dial(t, NewServer(f, nil))

	for _, task := range []protocol.TaskMessage{
		{Task: protocol.TaskProcessText, Content: "xin chào"},
		{Task: protocol.TaskRunTTS, Content: "hello"},
		{Task: protocol.TaskStartSTT},
		{Task: protocol.TaskStopSTT},
		{Task: "reboot"},
	} {
		if err := conn.WriteJSON(task); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got := waitCalls(t, f, 4)
	want := []string{"submit:xin chào", "say:hello", "listen", "stop-listening"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestStartWhileListeningIsIgnored(t *testing.T) {
	f := newFakeAssistant()
	f.listen = stt.ErrBusy
	conn := dial(t, NewServer(f, nil))

	if err := conn.WriteJSON(protocol.TaskMessage{Task: protocol.TaskStartSTT}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitCalls(t, f, 1)

	f.events <- assistant.Event{Type: assistant.EventState, State: orb.Listening}
	var ev protocol.ShellEvent
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Channel != protocol.ChannelOrbState {
		t.Fatalf("busy start must not produce an error frame, got %+v", ev)
	}
}

func TestEventsReachFrontEnd(t *testing.T) {
	f := newFakeAssistant()
	conn := dial(t, NewServer(f, nil))

	f.events <- assistant.Event{Type: assistant.EventState, State: orb.Processing}
	f.events <- assistant.Event{Type: assistant.EventLog}
	f.events <- assistant.Event{Type: assistant.EventRecord, Record: protocol.Record{Kind: protocol.KindChat, Type: "chat", Content: "hi"}}
	f.events <- assistant.Event{Type: assistant.EventTranscript, Text: "hello"}

	want := []protocol.ShellEvent{
		protocol.StateEvent("processing"),
		protocol.ResultEvent("chat", "hi"),
		protocol.TranscriptEvent("hello"),
	}
	for i, w := range want {
		var ev protocol.ShellEvent
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if ev.Channel != w.Channel || ev.State != w.State || ev.Text != w.Text {
			t.Fatalf("event %d: got %+v want %+v", i, ev, w)
		}
		if w.Result != nil && (ev.Result == nil || *ev.Result != *w.Result) {
			t.Fatalf("event %d: got result %+v want %+v", i, ev.Result, w.Result)
		}
	}
}

func TestIdleFrontEndStaysConnected(t *testing.T) {
	saved := pongWait
	pongWait = 200 * time.Millisecond
	t.Cleanup(func() { pongWait = saved })

	f := newFakeAssistant()
	conn := dial(t, NewServer(f, nil))

	// The read answers the server's pings while it waits.
	got := make(chan protocol.ShellEvent, 1)
	errc := make(chan error, 1)
	go func() {
		var ev protocol.ShellEvent
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&ev); err != nil {
			errc <- err
			return
		}
		got <- ev
	}()

	time.Sleep(4 * pongWait)
	f.events <- assistant.Event{Type: assistant.EventState, State: orb.Speaking}

	select {
	case ev := <-got:
		if ev.Channel != protocol.ChannelOrbState || ev.State != "speaking" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case err := <-errc:
		t.Fatalf("idle connection dropped: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("no event after idling")
	}
}

func TestShutdownStopsAssistant(t *testing.T) {
	f := newFakeAssistant()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(f, nil).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
	if got := f.called(); len(got) != 1 || got[0] != "stop" {
		t.Fatalf("expected stop on shutdown, got %v", got)
	}
}

func TestClientRoundTrip(t *testing.T) {
	f := newFakeAssistant()
	srv := httptest.NewServer(NewServer(f, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Send(protocol.TaskRunTTS, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitCalls(t, f, 1)

	got := make(chan protocol.ShellEvent, 1)
	go func() {
		_ = c.Events(ctx, func(ev protocol.ShellEvent) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	f.events <- assistant.Event{Type: assistant.EventState, State: orb.Speaking}
	select {
	case ev := <-got:
		if ev.State != "speaking" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}
}
