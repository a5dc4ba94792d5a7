package conversation

import (
	"regexp"
	"strings"

	log "log/slog"

	"vist/pkg/protocol"
)

// UndeliveredImageText replaces an image placeholder whose image never arrived.
const UndeliveredImageText = "Image was not delivered."

var rolePrefixRe = regexp.MustCompile(`^\s*(?:User|Assistant)\b\s*:?`)

// Sanitize strips a leading role label from model output and trims it.
func Sanitize(s string) string {
	return strings.TrimSpace(rolePrefixRe.ReplaceAllString(s, ""))
}

// Narrator receives text to speak. Implementations must not block.
type Narrator interface {
	Narrate(text string)
}

type NarratorFunc func(text string)

func (f NarratorFunc) Narrate(text string) { f(text) }

// Action tells what a routed record did to the log.
type Action int

const (
	Appended Action = iota
	Resolved
	Expired
	Nothing
)

// Outcome describes the effect of routing one record.
type Outcome struct {
	Action  Action
	Message Message
	// Narration is the text handed to the narrator, empty when nothing was spoken.
	Narration string
}

// Router applies backend records to a Store and requests narration for
// chat-like records. It tracks at most one pending image placeholder.
type Router struct {
	store    *Store
	narrator Narrator
	clock    Clock
	imageURL func(string) string
	pending  string
}

type RouterOption func(*Router)

// WithImageURL rewrites image references before they are stored.
func WithImageURL(fn func(string) string) RouterOption {
	return func(r *Router) { r.imageURL = fn }
}

func WithClock(c Clock) RouterOption {
	return func(r *Router) { r.clock = c }
}

func NewRouter(store *Store, narrator Narrator, opts ...RouterOption) *Router {
	r := &Router{store: store, narrator: narrator}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route applies one record. It never fails: unknown tags take the generic text path.
func (r *Router) Route(rec protocol.Record) Outcome {
	switch rec.Kind {
	case protocol.KindChat:
		return r.appendText(rec.Content)

	case protocol.KindImageStart:
		r.expirePending()
		m := r.store.Append(Message{Variant: AIImageLoading, Time: r.clock.Stamp(), Text: rec.Content})
		r.pending = m.ID
		return Outcome{Action: Appended, Message: m}

	case protocol.KindImage:
		url := r.resolveImage(rec.Content)
		if r.pending != "" {
			id := r.pending
			r.pending = ""
			m, err := r.store.Replace(id, Patch{
				Variant:  ptr(AIImageResult),
				ImageURL: ptr(url),
				Text:     ptr(""),
				Time:     ptr(r.clock.Stamp()),
			})
			if err == nil {
				return Outcome{Action: Resolved, Message: m}
			}
			log.Warn("image placeholder vanished", "id", id)
		}
		m := r.store.Append(Message{Variant: AIImageResult, ImageURL: url, Time: r.clock.Stamp()})
		return Outcome{Action: Appended, Message: m}

	default:
		return r.appendText(rec.Content)
	}
}

// Finish is called when the stream ends. A placeholder still waiting for its
// image is turned into a notice.
func (r *Router) Finish() Outcome {
	return r.expirePending()
}

// Expire resolves the placeholder with the given id if it is still pending.
func (r *Router) Expire(id string) Outcome {
	if id == "" || r.pending != id {
		return Outcome{Action: Nothing}
	}
	return r.expirePending()
}

// Pending returns the identifier of the unresolved image placeholder.
func (r *Router) Pending() (string, bool) {
	return r.pending, r.pending != ""
}

func (r *Router) expirePending() Outcome {
	if r.pending == "" {
		return Outcome{Action: Nothing}
	}
	id := r.pending
	r.pending = ""
	m, err := r.store.Replace(id, Patch{
		Variant: ptr(AITextStatic),
		Text:    ptr(UndeliveredImageText),
	})
	if err != nil {
		return Outcome{Action: Nothing}
	}
	return Outcome{Action: Expired, Message: m}
}

func (r *Router) appendText(content string) Outcome {
	text := Sanitize(content)
	m := r.store.Append(Message{Variant: AITextStatic, Text: text, Time: r.clock.Stamp()})
	out := Outcome{Action: Appended, Message: m}
	if text != "" && r.narrator != nil {
		r.narrator.Narrate(text)
		out.Narration = text
	}
	return out
}

func (r *Router) resolveImage(ref string) string {
	ref = strings.TrimSpace(ref)
	if r.imageURL == nil {
		return ref
	}
	return r.imageURL(ref)
}
