package assistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"vist/internal/conversation"
	"vist/internal/orb"
	"vist/internal/speech"
	"vist/pkg/protocol"
)

func (a *Assistant) submitTyped(text string, narrate bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if a.req != nil {
		return ErrBusy
	}
	if a.opts.Backend.UID() == "" {
		a.appendText(conversation.AITextStatic, NotSignedInText)
		return nil
	}

	a.cancelRecognition()
	a.stopNarration()
	a.appendText(conversation.UserText, text)
	a.startRequest(a.machine.Process(), text, narrate)
	return nil
}

// beginVoiceTurn runs the request for a transcript; tok already owns the machine.
func (a *Assistant) beginVoiceTurn(tok orb.Token, text string) {
	a.cancelRequest()
	if a.opts.Backend.UID() == "" {
		a.appendText(conversation.AITextStatic, NotSignedInText)
		a.machine.Failed(tok)
		return
	}
	a.appendText(conversation.UserText, text)
	a.startRequest(tok, text, true)
}

func (a *Assistant) startRequest(tok orb.Token, text string, narrate bool) {
	// A placeholder left by an earlier response is given up on.
	if out := a.router.Finish(); out.Action != conversation.Nothing {
		a.logChanged()
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.opts.RequestTimeout)
	req := &request{tok: tok, cancel: cancel, narrate: narrate}
	a.req = req

	go func() {
		defer cancel()

		reply, err := a.opts.Backend.Process(ctx, text)
		if err != nil {
			a.post(func() { a.requestFailed(req, err) })
			return
		}
		defer reply.Close()

		for {
			rec, err := reply.Next(ctx)
			if errors.Is(err, io.EOF) {
				a.post(func() { a.requestDone(req) })
				return
			}
			if err != nil {
				a.post(func() { a.requestFailed(req, err) })
				return
			}
			if !a.post(func() { a.recordArrived(req, rec) }) {
				return
			}
		}
	}()
}

func (a *Assistant) recordArrived(req *request, rec protocol.Record) {
	if a.req != req {
		return
	}

	out := a.router.Route(rec)
	a.bus.publish(Event{Type: EventRecord, Record: rec})
	if out.Action != conversation.Nothing {
		a.logChanged()
	}

	if out.Action == conversation.Appended && out.Message.Variant == conversation.AIImageLoading {
		a.armImageTimeout(out.Message.ID)
	}
}

func (a *Assistant) armImageTimeout(id string) {
	if a.opts.ImageTimeout <= 0 {
		return
	}
	time.AfterFunc(a.opts.ImageTimeout, func() {
		a.post(func() {
			if out := a.router.Expire(id); out.Action == conversation.Expired {
				a.log.Warn("image never arrived", "id", id)
				a.logChanged()
			}
		})
	})
}

// onChatText is the router's narrator; it runs on the loop while a record is routed.
func (a *Assistant) onChatText(text string) {
	req := a.req
	if req == nil || !req.narrate {
		return
	}
	if a.opts.Narration == NarrateEach {
		a.speak(text, req.tok)
		return
	}
	req.speech = append(req.speech, text)
}

func (a *Assistant) requestDone(req *request) {
	if a.req != req {
		return
	}
	a.req = nil
	req.cancel()

	if out := a.router.Finish(); out.Action != conversation.Nothing {
		a.logChanged()
	}

	if len(req.speech) > 0 {
		a.speak(strings.Join(req.speech, " "), req.tok)
	}
	a.machine.Responded(req.tok, a.narr != nil && a.narr.tok == req.tok)
}

func (a *Assistant) requestFailed(req *request, err error) {
	if a.req != req {
		return
	}
	a.req = nil
	req.cancel()

	a.log.Warn("backend request failed", "err", err)
	if out := a.router.Finish(); out.Action != conversation.Nothing {
		a.logChanged()
	}
	a.appendText(conversation.AITextStatic, BackendErrorText)
	a.machine.Failed(req.tok)
}

func (a *Assistant) cancelRequest() {
	if a.req == nil {
		return
	}
	a.req.cancel()
	a.req = nil
	if a.store.RemoveVariant(conversation.AIAnalyzingImage) > 0 {
		a.logChanged()
	}
}

func (a *Assistant) analyzeImage(path, prompt string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("image path is required")
	}
	if a.req != nil {
		return ErrBusy
	}
	if a.opts.Backend.UID() == "" {
		a.appendText(conversation.AITextStatic, NotSignedInText)
		return nil
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = conversation.DefaultImagePrompt
	}

	a.cancelRecognition()
	a.stopNarration()

	a.store.Append(conversation.Message{
		Variant:  conversation.UserImageWithText,
		Text:     prompt,
		ImageURL: path,
		Time:     a.opts.Clock.Stamp(),
	})
	a.appendText(conversation.AIAnalyzingImage, "")

	tok := a.machine.Process()
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.RequestTimeout)
	req := &request{tok: tok, cancel: cancel, narrate: true}
	a.req = req

	go func() {
		defer cancel()
		desc, err := a.opts.Backend.AnalyzeImage(ctx, path, prompt)
		a.post(func() { a.analysisDone(req, desc, err) })
	}()
	return nil
}

func (a *Assistant) analysisDone(req *request, desc string, err error) {
	if a.req != req {
		return
	}
	a.req = nil
	req.cancel()
	a.store.RemoveVariant(conversation.AIAnalyzingImage)

	if err != nil {
		a.log.Warn("image analysis failed", "err", err)
		a.appendText(conversation.AITextStatic, AnalysisFailedText)
		a.machine.Failed(req.tok)
		return
	}

	reply := conversation.Sanitize(desc)
	if reply == "" {
		reply = NoResponseText
	}
	a.appendText(conversation.AITextStatic, reply)
	a.speak(reply, req.tok)
	a.machine.Responded(req.tok, a.narr != nil)
}

// speak hands text to the speaker; the completion is attributed to tok.
func (a *Assistant) speak(text string, tok orb.Token) {
	if a.opts.Speaker == nil {
		return
	}
	a.narrSeq++
	seq := a.narrSeq
	a.narr = &narration{seq: seq, tok: tok}
	a.opts.Speaker.Narrate(text, func(err error) {
		a.post(func() { a.narrationDone(seq, err) })
	})
}

func (a *Assistant) narrationDone(seq uint64, err error) {
	if a.narr == nil || a.narr.seq != seq {
		return
	}
	tok := a.narr.tok
	a.narr = nil

	switch {
	case err == nil:
	case errors.Is(err, speech.ErrSuperseded), errors.Is(err, speech.ErrStopped):
		a.log.Debug("narration cut short", "err", err)
	default:
		a.log.Warn("narration failed", "err", err)
	}

	if a.machine.NarrationDone(tok) && a.opts.Continuous && err == nil && a.opts.Recognizer != nil {
		if err := a.listen(); err != nil {
			a.log.Debug("continuous listening not restarted", "err", err)
		}
	}
}

func (a *Assistant) stopNarration() {
	if a.narr == nil {
		return
	}
	a.narr = nil
	if a.opts.Speaker != nil {
		a.opts.Speaker.Stop()
	}
}
