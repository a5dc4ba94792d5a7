package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"vist/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath(), "Daemon control socket")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "How long to wait for the daemon")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: vist-ctl [flags] [trigger|stop|state|say <text>|ask <text>]")
		cli.PrintDefaults()
	}
	cli.Parse()

	msg, err := parseArgs(cli.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vist-daemon:", err)
		os.Exit(1)
	}
	if msg.Cmd == ipc.CmdState {
		fmt.Println(reply.State)
	}
}

// parseArgs maps command line arguments onto a control message; no arguments means trigger.
func parseArgs(args []string) (ipc.ControlMessage, error) {
	if len(args) == 0 {
		return ipc.ControlMessage{Cmd: ipc.CmdTrigger}, nil
	}
	cmd, text := args[0], strings.TrimSpace(strings.Join(args[1:], " "))
	switch cmd {
	case ipc.CmdTrigger, ipc.CmdStop, ipc.CmdState:
		if text != "" {
			return ipc.ControlMessage{}, fmt.Errorf("%s takes no text", cmd)
		}
	case ipc.CmdSay, ipc.CmdAsk:
		if text == "" {
			return ipc.ControlMessage{}, fmt.Errorf("%s needs text", cmd)
		}
	default:
		return ipc.ControlMessage{}, fmt.Errorf("unknown command %q", cmd)
	}
	return ipc.ControlMessage{Cmd: cmd, Text: text}, nil
}
