//go:build !whisper

package main

import "github.com/spf13/cobra"

func addTranscribeCmd(*cobra.Command, *globals) {}
