package stt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	DefaultListeningMarker = "listening"
	DefaultResultPrefix    = "result:"
	DefaultErrorPrefix     = "error:"
)

// HelperRecognizer runs an external recognizer that reports on stdout, one
// line at a time: a listening marker when capture starts, then either
// "result: <text>" or "error: <code>". Codes not-allowed and no-speech map to
// ErrPermissionDenied and ErrNoSpeech.
type HelperRecognizer struct {
	Command         string
	Args            []string
	ListeningMarker string
	ResultPrefix    string
	ErrorPrefix     string
	Logger          *slog.Logger

	mu      sync.Mutex
	running bool
}

func (h *HelperRecognizer) Recognize(ctx context.Context, onListening func()) (string, error) {
	if h.Command == "" {
		return "", errors.New("stt: empty helper command")
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return "", ErrBusy
	}
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	// The helper may keep running after it reported; it is stopped once a
	// result or error line has been read.
	helperCtx, stop := context.WithCancel(ctx)
	defer stop()

	cmd := exec.CommandContext(helperCtx, h.Command, h.Args...)
	// Grandchildren may keep stdout open after the helper is killed.
	cmd.WaitDelay = 500 * time.Millisecond
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", h.Command, err)
	}

	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waited <- err
	}()

	text, scanErr := h.scan(pr, onListening)
	reported := text != "" || scanErr != nil
	if reported {
		stop()
	}
	_, _ = io.Copy(io.Discard, pr)
	waitErr := <-waited

	if !reported && ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	if scanErr != nil {
		return "", scanErr
	}
	if text != "" {
		return text, nil
	}
	if waitErr != nil {
		h.logger().Debug("stt helper exited", "err", waitErr)
	}
	return "", ErrNoSpeech
}

// scan reads until a result or error line. It returns an empty text and a
// nil error when the helper exits without reporting either.
func (h *HelperRecognizer) scan(r io.Reader, onListening func()) (string, error) {
	marker := or(h.ListeningMarker, DefaultListeningMarker)
	resPrefix := or(h.ResultPrefix, DefaultResultPrefix)
	errPrefix := or(h.ErrorPrefix, DefaultErrorPrefix)

	announced := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, resPrefix):
			return strings.TrimSpace(strings.TrimPrefix(line, resPrefix)), nil
		case strings.HasPrefix(line, errPrefix):
			return "", helperError(strings.TrimSpace(strings.TrimPrefix(line, errPrefix)))
		case strings.Contains(line, marker):
			if !announced && onListening != nil {
				onListening()
			}
			announced = true
		default:
			h.logger().Debug("stt helper", "line", line)
		}
	}
	return "", sc.Err()
}

func helperError(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed", "permission-denied":
		return ErrPermissionDenied
	case "no-speech", "aborted", "":
		return ErrNoSpeech
	default:
		return fmt.Errorf("stt helper: %s", code)
	}
}

func (h *HelperRecognizer) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
