package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// SinkInput is one PulseAudio playback stream.
type SinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// DuckOptions tunes the ducker.
type DuckOptions struct {
	// SelfNames are application.name values that are never ducked.
	SelfNames []string
	// Factor scales the volume of other streams while ducked.
	Factor float64
	// MinVolume is the floor, in percent, for ducked streams.
	MinVolume int
	// Fade is the length of the volume ramp.
	Fade time.Duration
}

// Ducker fades every other application's stream down while narration plays
// and back up afterwards, through pactl.
type Ducker struct {
	mu          sync.Mutex
	active      bool
	opts        DuckOptions
	originalVol map[int]int

	list func(ctx context.Context) ([]SinkInput, error)
	set  func(ctx context.Context, id, percent int) error
}

func NewDucker(opts DuckOptions) *Ducker {
	opts.MinVolume = clampVolume(opts.MinVolume)
	if opts.Factor <= 0 || opts.Factor > 1 {
		opts.Factor = 0.3
	}
	opts.SelfNames = append([]string(nil), opts.SelfNames...)

	return &Ducker{
		opts:        opts,
		originalVol: make(map[int]int),
		list:        listSinkInputs,
		set:         setSinkInputVolume,
	}
}

// Duck lowers other streams. It is a no-op while already ducked.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.originalVol = make(map[int]int)

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * d.opts.Factor))
		if to < d.opts.MinVolume {
			to = d.opts.MinVolume
		}
		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: clampVolume(to)})
	}

	// Marked active before fading so a failed ramp can still be undone.
	d.active = true
	return d.fade(ctx, targets)
}

// Unduck restores the volumes recorded by Duck. Streams that appeared while
// ducked are left alone.
func (d *Ducker) Unduck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		orig, ok := d.originalVol[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	d.originalVol = make(map[int]int)
	d.active = false
	return d.fade(ctx, targets)
}

func (d *Ducker) isSelf(s SinkInput) bool {
	for _, name := range d.opts.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) fade(ctx context.Context, targets []fadeTarget) error {
	if len(targets) == 0 {
		return nil
	}

	if d.opts.Fade <= 0 {
		for _, t := range targets {
			if err := d.set(ctx, t.id, t.to); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := max(int(d.opts.Fade/minStep), 1)
	stepDur := d.opts.Fade / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.set(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func listSinkInputs(ctx context.Context) ([]SinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return ParseSinkInputs(string(out)), nil
}

// ParseSinkInputs reads the output of `pactl list sink-inputs`.
func ParseSinkInputs(text string) []SinkInput {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []SinkInput
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := SinkInput{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if _, rest, ok := strings.Cut(line, `"`); ok {
					s.AppName, _, _ = strings.Cut(rest, `"`)
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}

func setSinkInputVolume(ctx context.Context, id int, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}
