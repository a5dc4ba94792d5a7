// Package conversation holds the chat log shown by the assistant views and
// the router that turns backend records into log mutations.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Variant discriminates Message.
type Variant string

const (
	UserText          Variant = "user-text"
	UserImageWithText Variant = "user-image-with-text"
	AITextStatic      Variant = "ai-text-static"
	// AITextStreaming is text still being written. No backend record maps to
	// it; front ends render it when they build one up themselves.
	AITextStreaming   Variant = "ai-text-streaming"
	AIImageLoading    Variant = "ai-image-loading"
	AIAnalyzingImage  Variant = "ai-analyzing-image"
	AIImageResult     Variant = "ai-image-result"
)

// IsUser reports whether the variant was authored by the user.
func (v Variant) IsUser() bool {
	return strings.HasPrefix(string(v), "user-")
}

// IsPlaceholder reports whether the variant is a transient indicator.
func (v Variant) IsPlaceholder() bool {
	return v == AIImageLoading || v == AIAnalyzingImage
}

// Message is one entry of the chat log.
type Message struct {
	ID      string  `json:"id"`
	Variant Variant `json:"variant"`
	// Time is the display timestamp, already formatted.
	Time     string `json:"time"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Patch is a shallow update applied by Store.Replace. Nil fields are left alone.
type Patch struct {
	Variant  *Variant
	Time     *string
	Text     *string
	ImageURL *string
}

func (p Patch) apply(m *Message) {
	if p.Variant != nil {
		m.Variant = *p.Variant
	}
	if p.Time != nil {
		m.Time = *p.Time
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.ImageURL != nil {
		m.ImageURL = *p.ImageURL
	}
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultTimeFormat renders hour and minute, the way the log shows times.
const DefaultTimeFormat = "15:04"

// Clock formats display timestamps.
type Clock struct {
	Now    func() time.Time
	Format string
}

func (c Clock) Stamp() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	format := c.Format
	if format == "" {
		format = DefaultTimeFormat
	}
	return now().Format(format)
}

func ptr[T any](v T) *T {
	return &v
}
