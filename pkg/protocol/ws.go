package protocol

import (
	"context"
	"encoding/json"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// WebSocket is a reconnecting client connection to the desktop shell.
type WebSocket struct {
	mu      sync.Mutex
	conn    *ws.Conn
	url     string
	reconn  time.Duration
	timeout time.Duration
}

func NewWebSocket(ctx context.Context, url string, reconn, timeout time.Duration) (*WebSocket, error) {
	log.Debug("init websocket", "url", url)

	web := &WebSocket{
		url:     url,
		reconn:  reconn,
		timeout: timeout,
	}
	if web.reconn <= 0 {
		web.reconn = time.Second
	}

	conn, err := web.dial(ctx)
	if err != nil {
		return nil, err
	}
	web.conn = conn

	return web, nil
}

func (web *WebSocket) dial(ctx context.Context) (*ws.Conn, error) {
	dialer := *ws.DefaultDialer
	if web.timeout > 0 {
		dialer.HandshakeTimeout = web.timeout
	}
	conn, _, err := dialer.DialContext(ctx, web.url, nil)
	return conn, err
}

func (web *WebSocket) current() *ws.Conn {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn
}

func (web *WebSocket) Write(payload []byte) error {
	log.Debug("write ws", "msg", string(payload))
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

func (web *WebSocket) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return web.Write(data)
}

type WsIncomeKind uint

const (
	ConnClose WsIncomeKind = iota
	ReadFailure
	ReadOK
)

type Income struct {
	Kind WsIncomeKind
	Msg  []byte
	Err  error
}

func (web *WebSocket) Read() Income {
	_, msg, err := web.current().ReadMessage()
	if err != nil {
		if WsIsClosed(err) {
			return Income{Kind: ConnClose, Err: err}
		}
		return Income{Kind: ReadFailure, Err: err}
	}

	log.Debug("read ws", "msg", string(msg))
	return Income{Kind: ReadOK, Msg: msg}
}

// TryReconn redials until it succeeds or ctx ends.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	for {
		conn, err := web.dial(ctx)
		if err == nil {
			web.mu.Lock()
			old := web.conn
			web.conn = conn
			web.mu.Unlock()
			if old != nil {
				_ = old.Close()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) Close() error {
	conn := web.current()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
