package shell

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vist/pkg/protocol"
)

// Client is a front end connection to a running shell. It reconnects after
// the shell restarts.
type Client struct {
	ws  *protocol.WebSocket
	log *slog.Logger
}

func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ws, err := protocol.NewWebSocket(ctx, url, time.Second, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{ws: ws, log: logger}, nil
}

func (c *Client) Send(task, content string) error {
	return c.ws.WriteJSON(protocol.TaskMessage{Task: task, Content: content})
}

// Events delivers shell events to fn until ctx ends or reconnecting fails.
func (c *Client) Events(ctx context.Context, fn func(protocol.ShellEvent)) error {
	go func() {
		<-ctx.Done()
		_ = c.ws.Close()
	}()

	for {
		in := c.ws.Read()
		switch in.Kind {
		case protocol.ReadOK:
			var ev protocol.ShellEvent
			if err := json.Unmarshal(in.Msg, &ev); err != nil {
				c.log.Warn("bad shell event", "err", err)
				continue
			}
			fn(ev)
		case protocol.ConnClose, protocol.ReadFailure:
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("shell connection lost, reconnecting", "err", in.Err)
			if err := c.ws.TryReconn(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Client) Close() error {
	return c.ws.Close()
}
