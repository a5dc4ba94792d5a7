// Package assistant runs one conversation: it owns the chat log, the orb
// state machine and the narration coordinator, and sequences typed turns,
// voice turns and image analysis against the backend.
//
// All state is mutated on a single event loop started by Run. Public methods
// post work to that loop; background operations (HTTP requests, recognition
// sessions, narration) post their completions back, tagged with the
// operation that produced them so stale completions are dropped.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vist/internal/backend"
	"vist/internal/conversation"
	"vist/internal/orb"
	"vist/pkg/protocol"
	"vist/pkg/stt"
)

// User-visible texts appended to the log.
const (
	NotSignedInText       = "Not signed in."
	BackendErrorText      = "Could not reach the assistant server."
	NoResponseText        = "No response"
	AnalysisFailedText    = "Image analysis failed"
	PermissionDeniedText  = "Microphone access was denied. Allow microphone access and try again."
	RecognitionFailedText = "Speech recognition failed."
	DefaultGreeting       = "Hi {name}, how can I help you today?"
)

const (
	defaultDisplayName    = "there"
	defaultImageTimeout   = 90 * time.Second
	defaultRequestTimeout = 120 * time.Second
	queueDepth            = 64
)

var (
	// ErrBusy is returned when a typed request arrives while another one is in flight.
	ErrBusy = errors.New("assistant is busy")
	// ErrClosed is returned once Run has returned.
	ErrClosed = errors.New("assistant stopped")
	// ErrNoRecognizer is returned by Listen when speech input is not configured.
	ErrNoRecognizer = errors.New("speech recognition not configured")
	// ErrNoSpeaker is returned by Say when narration is not configured.
	ErrNoSpeaker = errors.New("speech output not configured")
)

// NarrationMode selects how chat records of one response are spoken.
type NarrationMode string

const (
	// NarrateJoined speaks the whole response once it has arrived.
	NarrateJoined NarrationMode = "joined"
	// NarrateEach speaks every chat record as it arrives, each one cutting the previous short.
	NarrateEach NarrationMode = "each"
)

func ParseNarrationMode(v string) (NarrationMode, error) {
	switch NarrationMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", NarrateJoined:
		return NarrateJoined, nil
	case NarrateEach:
		return NarrateEach, nil
	}
	return "", fmt.Errorf("unknown narration mode %q (want joined or each)", v)
}

// Backend is the part of the server API the assistant drives.
type Backend interface {
	UID() string
	Process(ctx context.Context, text string, opts ...protocol.StreamOption) (*backend.Reply, error)
	History(ctx context.Context) ([]protocol.HistoryEntry, error)
	AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error)
	SetCurrentUser(ctx context.Context) error
	DataURL(name string) string
}

// Speaker plays narration one utterance at a time; speech.Coordinator implements it.
type Speaker interface {
	Narrate(text string, onComplete func(error))
	Stop()
	Close()
}

type Options struct {
	Backend    Backend
	Speaker    Speaker
	Recognizer stt.Recognizer

	// Continuous restarts listening after every narrated voice turn.
	Continuous  bool
	Greeting    string
	DisplayName string
	Narration   NarrationMode
	// HistoryLimit bounds the loaded history; 0 means conversation.DefaultHistoryLimit.
	HistoryLimit int
	// ImageTimeout resolves an image placeholder whose image never arrives.
	ImageTimeout   time.Duration
	RequestTimeout time.Duration
	Clock          conversation.Clock

	// OnListening runs on the recognizer goroutine once capture started.
	OnListening func()
	Logger      *slog.Logger
}

type request struct {
	tok     orb.Token
	cancel  context.CancelFunc
	narrate bool
	// speech collects chat text for NarrateJoined.
	speech []string
}

type session struct {
	tok    orb.Token
	cancel context.CancelFunc
}

type narration struct {
	seq uint64
	tok orb.Token
}

type Assistant struct {
	opts Options
	log  *slog.Logger
	bus  *bus

	cmds chan func()
	done chan struct{}
	ctx  context.Context
	ran  atomic.Bool

	// Owned by the loop.
	store   *conversation.Store
	router  *conversation.Router
	machine *orb.Machine
	req     *request
	rec     *session
	narr    *narration
	narrSeq uint64

	// Published snapshots, safe for any goroutine.
	state    atomic.Int32
	snapMu   sync.RWMutex
	snapshot []conversation.Message
}

func New(opts Options) (*Assistant, error) {
	if opts.Backend == nil {
		return nil, errors.New("assistant: backend is required")
	}
	if opts.Narration == "" {
		opts.Narration = NarrateJoined
	}
	if opts.ImageTimeout == 0 {
		opts.ImageTimeout = defaultImageTimeout
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = conversation.DefaultHistoryLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assistant{
		opts: opts,
		log:  logger,
		bus:  newBus(logger),
		cmds: make(chan func(), queueDepth),
		done: make(chan struct{}),
		ctx:  context.Background(),
	}

	a.store = conversation.NewStore(conversation.Message{
		Variant: conversation.AITextStatic,
		Text:    greeting(opts.Greeting, opts.DisplayName),
		Time:    opts.Clock.Stamp(),
	})
	a.router = conversation.NewRouter(a.store, conversation.NarratorFunc(a.onChatText),
		conversation.WithClock(opts.Clock),
		conversation.WithImageURL(a.resolveImage),
	)
	a.machine = orb.New(a.onStateChange)
	a.snapshot = a.store.Messages()

	return a, nil
}

func greeting(tmpl, name string) string {
	if tmpl == "" {
		tmpl = DefaultGreeting
	}
	if name == "" {
		name = defaultDisplayName
	}
	return strings.ReplaceAll(tmpl, "{name}", name)
}

// Run processes events until ctx ends. Every in-flight operation is torn down
// before it returns.
func (a *Assistant) Run(ctx context.Context) error {
	if !a.ran.CompareAndSwap(false, true) {
		return errors.New("assistant: Run called twice")
	}
	a.ctx = ctx

	if a.opts.Backend.UID() != "" {
		go func() {
			if err := a.opts.Backend.SetCurrentUser(ctx); err != nil {
				a.log.Warn("set current user failed", "err", err)
			}
		}()
	}

	defer a.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-a.cmds:
			fn()
		}
	}
}

func (a *Assistant) shutdown() {
	close(a.done)
	a.cancelRecognition()
	a.cancelRequest()
	if a.opts.Speaker != nil {
		a.opts.Speaker.Close()
	}
	a.machine.Stop()
}

// post queues fn on the loop. It reports false once the loop has exited.
func (a *Assistant) post(fn func()) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.cmds <- fn:
		return true
	case <-a.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (a *Assistant) call(fn func() error) error {
	res := make(chan error, 1)
	if !a.post(func() { res <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-a.done:
		return ErrClosed
	}
}

// Subscribe returns a channel of events and a function that cancels the subscription.
func (a *Assistant) Subscribe() (<-chan Event, func()) {
	return a.bus.subscribe()
}

// State returns the current orb state.
func (a *Assistant) State() orb.State {
	return orb.State(a.state.Load())
}

// Messages returns a copy of the chat log.
func (a *Assistant) Messages() []conversation.Message {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return append([]conversation.Message(nil), a.snapshot...)
}

// Submit runs a typed turn. It fails with ErrBusy while a request is in flight.
func (a *Assistant) Submit(text string) error {
	return a.call(func() error { return a.submitTyped(text, true) })
}

// SubmitQuiet runs a typed turn without narration.
func (a *Assistant) SubmitQuiet(text string) error {
	return a.call(func() error { return a.submitTyped(text, false) })
}

// Say speaks text outside of any turn, cutting off whatever is playing.
func (a *Assistant) Say(text string) error {
	return a.call(func() error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		if a.opts.Speaker == nil {
			return ErrNoSpeaker
		}
		a.cancelRecognition()
		a.cancelRequest()
		tok := a.machine.Speak()
		a.speak(text, tok)
		return nil
	})
}

// Listen starts a recognition session. It fails with stt.ErrBusy while one is running.
func (a *Assistant) Listen() error {
	return a.call(a.listen)
}

// StopListening ends the current recognition session, if any.
func (a *Assistant) StopListening() error {
	return a.call(func() error {
		if a.rec == nil {
			return nil
		}
		tok := a.rec.tok
		a.cancelRecognition()
		a.machine.RecognitionEnded(tok, false)
		return nil
	})
}

// Stop tears down recognition, the in-flight request and narration, and goes idle.
func (a *Assistant) Stop() error {
	return a.call(func() error {
		a.cancelRecognition()
		a.cancelRequest()
		a.stopNarration()
		a.machine.Stop()
		return nil
	})
}

// AnalyzeImage uploads an image with a prompt and narrates the description.
func (a *Assistant) AnalyzeImage(path, prompt string) error {
	return a.call(func() error { return a.analyzeImage(path, prompt) })
}

// LoadHistory replaces the log with the stored history of the user. An empty
// history keeps the current log.
func (a *Assistant) LoadHistory(ctx context.Context) (int, error) {
	entries, err := a.opts.Backend.History(ctx)
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}
	var n int
	err = a.call(func() error {
		n = a.store.LoadHistory(entries, conversation.HistoryOptions{
			Limit:   a.opts.HistoryLimit,
			DataURL: a.opts.Backend.DataURL,
			Clock:   a.opts.Clock,
		})
		if n > 0 {
			a.logChanged()
		}
		return nil
	})
	return n, err
}

func (a *Assistant) onStateChange(from, to orb.State) {
	a.state.Store(int32(to))
	a.log.Debug("orb", "from", from, "to", to)
	a.bus.publish(Event{Type: EventState, State: to})
}

func (a *Assistant) logChanged() {
	msgs := a.store.Messages()
	a.snapMu.Lock()
	a.snapshot = msgs
	a.snapMu.Unlock()
	a.bus.publish(Event{Type: EventLog})
}

func (a *Assistant) notice(text string) {
	a.bus.publish(Event{Type: EventNotice, Text: text})
}

func (a *Assistant) appendText(v conversation.Variant, text string) conversation.Message {
	m := a.store.Append(conversation.Message{Variant: v, Text: text, Time: a.opts.Clock.Stamp()})
	a.logChanged()
	return m
}

func (a *Assistant) resolveImage(ref string) string {
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	return a.opts.Backend.DataURL(conversation.FileName(ref))
}
