// Package tts holds the narration mechanisms the speech coordinator drives.
package tts

import (
	"errors"
	"strings"
	"time"
)

// killGrace bounds how long a killed helper's pipes are drained.
const killGrace = 500 * time.Millisecond

// ErrEmptyCommand is returned when a synthesizer has no program to run.
var ErrEmptyCommand = errors.New("tts: empty command")

// expandArgs substitutes {text}, {out} and {voice} in every argument.
func expandArgs(args []string, text, out, voice string) []string {
	r := strings.NewReplacer("{text}", text, "{out}", out, "{voice}", voice)
	res := make([]string, len(args))
	for i, a := range args {
		res[i] = r.Replace(a)
	}
	return res
}

func usesPlaceholder(args []string, ph string) bool {
	for _, a := range args {
		if strings.Contains(a, ph) {
			return true
		}
	}
	return false
}
