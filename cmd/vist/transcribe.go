//go:build whisper

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vist/pkg/audioconv"
	"vist/pkg/stt"
)

func addTranscribeCmd(root *cobra.Command, g *globals) {
	var (
		model    string
		language string
	)
	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe an audio file with the local whisper model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = g.cfg.Recognition.WhisperModel
			}
			if language == "" {
				language = g.cfg.Recognition.Language
			}
			pcm, err := audioconv.ConvertFile(cmd.Context(), args[0], audioconv.Options{})
			if err != nil {
				return err
			}
			t, err := stt.NewTranscriber(model)
			if err != nil {
				return err
			}
			defer t.Close()

			res, err := t.TranscribePCM(cmd.Context(), pcm, stt.Options{Language: language})
			if err != nil {
				return err
			}
			g.logger.Debug("transcribed", "language", res.Language, "segments", len(res.Segments))
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "whisper model path (default recognition.whisper_model)")
	cmd.Flags().StringVar(&language, "lang", "", "language code or auto")
	root.AddCommand(cmd)
}
