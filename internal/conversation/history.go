package conversation

import (
	"slices"
	"strings"

	"vist/pkg/protocol"
)

// DefaultHistoryLimit is how many history messages are kept client side.
const DefaultHistoryLimit = 50

// DefaultImagePrompt labels an image analysis that was stored without a prompt.
const DefaultImagePrompt = "Describe this image"

type HistoryOptions struct {
	// Limit keeps only the most recent messages. Zero means DefaultHistoryLimit.
	Limit int
	// DataURL resolves a stored file name into a fetchable URL. Nil leaves the name as is.
	DataURL func(name string) string
	// Clock stamps entries that carry no time.
	Clock Clock
	// DefaultPrompt labels analysis entries without a prompt.
	DefaultPrompt string
}

// MapHistory converts stored history entries into log messages, sorted with
// SortHistory and bounded to the most recent opts.Limit messages.
func MapHistory(entries []protocol.HistoryEntry, opts HistoryOptions) []Message {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prompt := opts.DefaultPrompt
	if prompt == "" {
		prompt = DefaultImagePrompt
	}

	var out []Message
	// Stored ids are kept for images but may repeat across entries.
	usedIDs := make(map[string]bool)
	for _, h := range entries {
		stamp := h.Time
		if stamp == "" {
			stamp = h.Timestamp
		}
		if stamp == "" {
			stamp = opts.Clock.Stamp()
		}

		switch h.Type {
		case protocol.HistoryText:
			variant := AITextStatic
			if h.Role == "user" {
				variant = UserText
			}
			out = append(out, Message{ID: NewID(), Variant: variant, Text: h.Content, Time: stamp})

		case protocol.HistoryImage:
			id := h.ID
			if id == "" || usedIDs[id] {
				id = NewID()
			}
			usedIDs[id] = true
			out = append(out, Message{ID: id, Variant: AIImageResult, ImageURL: imageURL(h.ImagePath, opts.DataURL), Time: stamp})

		case protocol.HistoryImageAnalysis, protocol.HistoryScreenAnalysis:
			if url := imageURL(h.ImagePath, opts.DataURL); url != "" {
				text := h.Prompt
				if text == "" {
					text = prompt
				}
				out = append(out, Message{ID: NewID(), Variant: UserImageWithText, ImageURL: url, Text: text, Time: stamp})
			}
			if h.Analysis != "" {
				out = append(out, Message{ID: NewID(), Variant: AITextStatic, Text: h.Analysis, Time: stamp})
			}
		}
	}

	SortHistory(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SortHistory orders messages by their display time, putting user messages
// before assistant messages at equal times. The order is stable otherwise.
//
// Times compare as plain strings, which is only meaningful for stamps of the
// same day rendered in the same 24h layout.
func SortHistory(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := strings.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		switch au, bu := a.Variant.IsUser(), b.Variant.IsUser(); {
		case au && !bu:
			return -1
		case !au && bu:
			return 1
		}
		return 0
	})
}

// FileName returns the last element of a stored path, accepting both slash styles.
func FileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func imageURL(path string, resolve func(string) string) string {
	if path == "" {
		return ""
	}
	name := FileName(path)
	if name == "" {
		return ""
	}
	if resolve == nil {
		return name
	}
	return resolve(name)
}
