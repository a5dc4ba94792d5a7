package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vist/internal/shell"
	"vist/pkg/protocol"
)

func newAttachCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "attach [url]",
		Short: "Talk to a running vist-daemon over its websocket",
		Long:  "Every line read from stdin is sent as a typed message. Lines starting with / are commands: /listen, /stop, /say <text>.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "ws://" + g.cfg.Shell.Addr + "/"
			if len(args) == 1 {
				url = args[0]
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			c, err := shell.Dial(ctx, url, g.logger)
			if err != nil {
				return fmt.Errorf("attach %s: %w", url, err)
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			errc := make(chan error, 1)
			go func() {
				errc <- c.Events(ctx, func(ev protocol.ShellEvent) {
					fmt.Fprintln(out, formatShellEvent(ev))
				})
			}()

			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				task, content := parseAttachLine(sc.Text())
				if task == "" {
					continue
				}
				if err := c.Send(task, content); err != nil {
					return err
				}
			}
			cancel()
			if err := <-errc; err != nil {
				return err
			}
			return sc.Err()
		},
	}
}

func parseAttachLine(line string) (task, content string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", ""
	case line == "/listen":
		return protocol.TaskStartSTT, ""
	case line == "/stop":
		return protocol.TaskStopSTT, ""
	case strings.HasPrefix(line, "/say "):
		return protocol.TaskRunTTS, strings.TrimSpace(strings.TrimPrefix(line, "/say "))
	}
	return protocol.TaskProcessText, line
}

func formatShellEvent(ev protocol.ShellEvent) string {
	switch ev.Channel {
	case protocol.ChannelOrbState:
		return "* " + ev.State
	case protocol.ChannelSTTResult:
		return "> " + ev.Text
	case protocol.ChannelTaskResult:
		if ev.Result != nil {
			return ev.Result.Type + ": " + ev.Result.Result
		}
	}
	return ev.Channel
}
