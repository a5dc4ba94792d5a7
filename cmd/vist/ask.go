package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vist/internal/app"
	"vist/internal/assistant"
	"vist/pkg/protocol"
)

func newAskCmd(g *globals) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUID(g); err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := startAssistant(ctx, g, app.Options{NoSpeech: quiet})
			if err != nil {
				return err
			}
			defer s.stop()

			events, unsubscribe := s.Assistant.Subscribe()
			defer unsubscribe()

			submit := s.Assistant.Submit
			if quiet {
				submit = s.Assistant.SubmitQuiet
			}
			if err := submit(strings.Join(args, " ")); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printed := false
			err = waitIdle(ctx, events, func(ev assistant.Event) {
				if ev.Type != assistant.EventRecord {
					return
				}
				switch ev.Record.Kind {
				case protocol.KindChat:
					fmt.Fprintln(out, ev.Record.Content)
					printed = true
				case protocol.KindImage:
					fmt.Fprintln(out, "image:", s.Backend.DataURL(ev.Record.Content))
					printed = true
				}
			})
			if err != nil {
				return err
			}
			if !printed {
				// Failures land in the log as a static reply.
				if msgs := s.Assistant.Messages(); len(msgs) > 0 {
					fmt.Fprintln(out, msgs[len(msgs)-1].Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not narrate the reply")
	return cmd
}

func newSayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text with the configured voice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := startAssistant(ctx, g, app.Options{})
			if err != nil {
				return err
			}
			defer s.stop()

			events, unsubscribe := s.Assistant.Subscribe()
			defer unsubscribe()

			if err := s.Assistant.Say(strings.Join(args, " ")); err != nil {
				if errors.Is(err, assistant.ErrNoSpeaker) {
					return fmt.Errorf("%w: check speech.primary", err)
				}
				return err
			}
			return waitIdle(ctx, events, nil)
		},
	}
}
