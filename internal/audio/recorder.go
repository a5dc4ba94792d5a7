//go:build whisper

package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// CaptureRate is the sample rate the microphone is opened at.
const CaptureRate = 16000

// ErrDeviceUnavailable is returned when no input device can be opened.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// VAD tunes the end-of-speech detector used by RecordUtterance.
type VAD struct {
	Threshold float64
	Silence   time.Duration
	MaxLength time.Duration
}

func DefaultVAD() VAD {
	return VAD{Threshold: 0.015, Silence: 600 * time.Millisecond, MaxLength: 10 * time.Second}
}

type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordUtterance captures mono 16 kHz audio until the speaker falls silent,
// MaxLength elapses or ctx ends. started fires once the device is open.
// Leading silence is dropped.
func (r *Recorder) RecordUtterance(ctx context.Context, vad VAD, started func()) ([]float32, error) {
	const frameSize = CaptureRate / 50 // 20ms

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, CaptureRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer stream.Stop()

	if started != nil {
		started()
	}

	var (
		out           = make([]float32, 0, CaptureRate*3)
		speaking      bool
		silenceFrames int
	)
	silenceLimit := int(vad.Silence / (20 * time.Millisecond))
	maxFrames := int(vad.MaxLength / (20 * time.Millisecond))

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		if FrameRMS(buf) > vad.Threshold {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}
		if !speaking {
			continue
		}
		silenceFrames++
		out = append(out, buf...)
		if silenceFrames >= silenceLimit {
			break
		}
	}

	return out, nil
}

// RecordUntil captures until stop closes, ctx ends or maxDur elapses.
func (r *Recorder) RecordUntil(ctx context.Context, stop <-chan struct{}, maxDur time.Duration) ([]float32, error) {
	const frameSize = 1024

	if maxDur <= 0 {
		maxDur = 15 * time.Second
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(CaptureRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer stream.Stop()

	deadline := time.Now().Add(maxDur)
	out := make([]float32, 0, int(float64(CaptureRate)*maxDur.Seconds()))

	for time.Now().Before(deadline) {
		select {
		case <-stop:
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, errors.New("no audio recorded")
	}
	return out, nil
}
