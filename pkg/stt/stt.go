// Package stt turns speech into text, either through an external helper
// process or the in-process whisper transcriber.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the microphone is not available to us.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNoSpeech is returned when the session ended without a transcript.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrBusy is returned when a recognition session is already running.
	ErrBusy = errors.New("recognition already running")
)

// Recognizer captures one utterance and returns its transcript.
// onListening, when not nil, is called once capture actually started.
// Cancelling ctx ends the session.
type Recognizer interface {
	Recognize(ctx context.Context, onListening func()) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, onListening func()) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, onListening func()) (string, error) {
	return f(ctx, onListening)
}
