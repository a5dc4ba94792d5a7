// Package speech serializes narration so at most one utterance plays at a time.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrSuperseded is reported to the completion of an utterance cut short by a newer one.
	ErrSuperseded = errors.New("narration superseded")
	// ErrStopped is reported when Stop or Close interrupted playback.
	ErrStopped = errors.New("narration stopped")
	// ErrNoSynthesizer is reported when neither mechanism is configured.
	ErrNoSynthesizer = errors.New("no speech synthesizer configured")
)

// Synthesizer speaks text and returns once playback finished. Cancelling ctx
// must stop playback promptly.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Ducker lowers other audio while narration plays.
type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Options struct {
	Primary  Synthesizer
	Fallback Synthesizer
	Ducker   Ducker
	Logger   *slog.Logger
}

type utterance struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Coordinator plays one utterance at a time. A new Narrate call stops the
// current utterance before starting; requests are never queued.
type Coordinator struct {
	primary  Synthesizer
	fallback Synthesizer
	ducker   Ducker
	log      *slog.Logger

	mu     sync.Mutex
	cur    *utterance
	closed bool
	wg     sync.WaitGroup
}

func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		ducker:   opts.Ducker,
		log:      logger,
	}
}

// Narrate stops whatever is playing and speaks text. onComplete, when not
// nil, runs exactly once on its own goroutine after playback finished,
// failed, or was cut short.
func (c *Coordinator) Narrate(text string, onComplete func(error)) {
	ctx, cancel := context.WithCancelCause(context.Background())
	u := &utterance{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel(ErrStopped)
		if onComplete != nil {
			go onComplete(ErrStopped)
		}
		return
	}
	prev := c.cur
	c.cur = u
	c.wg.Add(1)
	c.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}

	go func() {
		defer c.wg.Done()

		if prev != nil {
			<-prev.done
		}

		err := c.play(ctx, text)

		c.mu.Lock()
		last := c.cur == u
		if last {
			c.cur = nil
		}
		c.mu.Unlock()

		if last && c.ducker != nil {
			uctx, ucancel := context.WithTimeout(context.Background(), 2*time.Second)
			if uerr := c.ducker.Unduck(uctx); uerr != nil {
				c.log.Debug("unduck failed", "err", uerr)
			}
			ucancel()
		}

		close(u.done)
		cancel(nil)

		if onComplete != nil {
			onComplete(err)
		}
	}()
}

func (c *Coordinator) play(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	if text == "" {
		return nil
	}
	if c.primary == nil && c.fallback == nil {
		return ErrNoSynthesizer
	}

	if c.ducker != nil {
		if err := c.ducker.Duck(ctx); err != nil {
			c.log.Debug("duck failed", "err", err)
		}
	}

	var err error
	if c.primary != nil {
		err = c.primary.Speak(ctx, text)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		c.log.Warn("primary narration failed", "err", err)
	}

	if c.fallback != nil {
		err = c.fallback.Speak(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			c.log.Warn("fallback narration failed", "err", err)
		}
	}
	return err
}

// Speaking reports whether an utterance is active.
func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// Stop cuts the current utterance short.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()
	if cur != nil {
		cur.cancel(ErrStopped)
	}
}

// Close stops playback, waits for every completion and rejects later requests.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	cur := c.cur
	c.mu.Unlock()
	if cur != nil {
		cur.cancel(ErrStopped)
	}
	c.wg.Wait()
}
