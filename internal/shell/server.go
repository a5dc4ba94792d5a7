// Package shell exposes an assistant to desktop front ends over a websocket:
// front ends send tasks, the shell pushes orb states, transcripts and
// response records back.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vist/internal/assistant"
	"vist/pkg/protocol"
	"vist/pkg/stt"
)

// Assistant is what the shell drives.
type Assistant interface {
	SubmitQuiet(text string) error
	Say(text string) error
	Listen() error
	StopListening() error
	Stop() error
	Subscribe() (<-chan assistant.Event, func())
}

const writeWait = 5 * time.Second

// pongWait bounds the silence from a front end; pings go out well before it.
var pongWait = 60 * time.Second

type Server struct {
	a        Assistant
	log      *slog.Logger
	upgrader websocket.Upgrader
	pongWait time.Duration
}

func NewServer(a Assistant, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		a:        a,
		log:      logger,
		pongWait: pongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Front ends run locally from file:// or a dev server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe serves on addr until ctx ends. On the way out every helper
// is stopped, which reports idle to connected front ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("shell listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := s.a.Stop(); err != nil && !errors.Is(err, assistant.ErrClosed) {
		s.log.Debug("stop on shutdown", "err", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.log.Debug("front end connected", "remote", r.RemoteAddr)

	events, unsubscribe := s.a.Subscribe()
	c := &client{conn: conn}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(c, events)
	}()

	s.readLoop(c)
	unsubscribe()
	wg.Wait()
	_ = conn.Close()
	s.log.Debug("front end disconnected", "remote", r.RemoteAddr)
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(ev protocol.ShellEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// pump forwards assistant events and keeps the connection alive with pings
// until the subscription is cancelled.
func (s *Server) pump(c *client, events <-chan assistant.Event) {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			out, ok := ToShellEvent(ev)
			if !ok {
				continue
			}
			if err := c.send(out); err != nil {
				s.log.Debug("write to front end failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				s.log.Debug("ping front end failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) readLoop(c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !protocol.WsIsClosed(err) {
				s.log.Debug("read from front end failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var task protocol.TaskMessage
		if err := json.Unmarshal(data, &task); err != nil {
			s.log.Warn("bad task message", "err", err)
			continue
		}
		if err := s.dispatch(task); err != nil {
			_ = c.send(protocol.ResultEvent("error", err.Error()))
		}
	}
}

func (s *Server) dispatch(task protocol.TaskMessage) error {
	s.log.Debug("task", "task", task.Task)
	switch task.Task {
	case protocol.TaskProcessText:
		return s.a.SubmitQuiet(task.Content)
	case protocol.TaskRunTTS:
		return s.a.Say(task.Content)
	case protocol.TaskStartSTT:
		// A second start while a session runs is ignored.
		if err := s.a.Listen(); err != nil && !errors.Is(err, stt.ErrBusy) {
			return err
		}
		return nil
	case protocol.TaskStopSTT:
		return s.a.StopListening()
	default:
		s.log.Warn("unknown task", "task", task.Task)
		return nil
	}
}

// ToShellEvent maps an assistant event onto the shell wire format.
func ToShellEvent(ev assistant.Event) (protocol.ShellEvent, bool) {
	switch ev.Type {
	case assistant.EventState:
		return protocol.StateEvent(ev.State.String()), true
	case assistant.EventTranscript:
		return protocol.TranscriptEvent(ev.Text), true
	case assistant.EventRecord:
		return protocol.ResultEvent(ev.Record.Type, ev.Record.Content), true
	case assistant.EventNotice:
		return protocol.ResultEvent("error", ev.Text), true
	default:
		return protocol.ShellEvent{}, false
	}
}
