// Package orb tracks what the assistant is doing right now: idle, listening,
// processing or speaking.
//
// Every operation the machine owns (a recognition session, a backend
// request, a narration) is started under a generation Token. Completions
// carry the token back; a completion whose token is no longer current is
// ignored, so a late callback from a superseded operation never overrides a
// newer transition.
package orb

import (
	"fmt"
	log "log/slog"
)

type State int

const (
	Idle State = iota
	Listening
	Processing
	Speaking
)

var stateNames = [...]string{"idle", "listening", "processing", "speaking"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func ParseState(v string) (State, error) {
	for i, name := range stateNames {
		if name == v {
			return State(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown orb state %q", v)
}

// Token identifies the operation that produced a completion.
type Token struct {
	gen uint64
}

func (t Token) Valid() bool { return t.gen != 0 }

// Machine is owned by one event loop and is not safe for concurrent use.
type Machine struct {
	state    State
	gen      uint64
	onChange func(from, to State)
}

func New(onChange func(from, to State)) *Machine {
	return &Machine{onChange: onChange}
}

func (m *Machine) State() State { return m.state }

// Current returns the token of the operation that owns the machine.
func (m *Machine) Current() Token { return Token{gen: m.gen} }

// IsCurrent reports whether tok still owns the machine.
func (m *Machine) IsCurrent(tok Token) bool {
	return tok.Valid() && tok.gen == m.gen
}

// Listen starts a recognition session. Whatever was running before is superseded.
func (m *Machine) Listen() Token {
	return m.begin(Listening)
}

// Process starts a backend request for typed text. Whatever was running before is superseded.
func (m *Machine) Process() Token {
	return m.begin(Processing)
}

// Speak starts a standalone narration, as requested by the desktop shell.
func (m *Machine) Speak() Token {
	return m.begin(Speaking)
}

// Recognized reports the outcome of the session started with tok. A non-empty
// transcript moves to processing under a new token; an empty one ends in idle.
func (m *Machine) Recognized(tok Token, transcript string) (Token, bool) {
	if !m.owns(tok, Listening) {
		return Token{}, false
	}
	if transcript == "" {
		m.set(Idle)
		return Token{}, false
	}
	return m.begin(Processing), true
}

// RecognitionEnded closes the session started with tok without a transcript.
// When retrying is set (permission prompt pending) the machine keeps listening.
func (m *Machine) RecognitionEnded(tok Token, retrying bool) bool {
	if !m.owns(tok, Listening) {
		return false
	}
	if retrying {
		return true
	}
	m.set(Idle)
	return true
}

// Responded reports that the full response for tok arrived. With narratable
// text the machine moves to speaking and tok keeps ownership.
func (m *Machine) Responded(tok Token, narratable bool) bool {
	if !m.owns(tok, Processing) {
		return false
	}
	if narratable {
		m.set(Speaking)
	} else {
		m.set(Idle)
	}
	return true
}

// Failed reports a backend error for tok.
func (m *Machine) Failed(tok Token) bool {
	if !m.owns(tok, Processing) {
		return false
	}
	m.set(Idle)
	return true
}

// NarrationDone reports that the narration started under tok completed or was cut short.
func (m *Machine) NarrationDone(tok Token) bool {
	if !m.owns(tok, Speaking) {
		return false
	}
	m.set(Idle)
	return true
}

// Stop forces idle and invalidates every outstanding token.
func (m *Machine) Stop() {
	m.gen++
	m.set(Idle)
}

func (m *Machine) begin(to State) Token {
	m.gen++
	m.set(to)
	return Token{gen: m.gen}
}

func (m *Machine) owns(tok Token, want State) bool {
	if !m.IsCurrent(tok) {
		log.Debug("ignoring stale completion", "token", tok.gen, "current", m.gen)
		return false
	}
	if m.state != want {
		log.Debug("ignoring completion in unexpected state", "state", m.state, "want", want)
		return false
	}
	return true
}

func (m *Machine) set(to State) {
	from := m.state
	m.state = to
	if from != to && m.onChange != nil {
		m.onChange(from, to)
	}
}
