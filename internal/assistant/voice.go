package assistant

import (
	"context"
	"errors"

	"vist/internal/conversation"
	"vist/pkg/stt"
)

func (a *Assistant) listen() error {
	if a.opts.Recognizer == nil {
		return ErrNoRecognizer
	}
	if a.rec != nil {
		return stt.ErrBusy
	}

	// A voice turn supersedes whatever the previous turn still does.
	a.cancelRequest()
	a.stopNarration()

	tok := a.machine.Listen()
	ctx, cancel := context.WithCancel(a.ctx)
	sess := &session{tok: tok, cancel: cancel}
	a.rec = sess

	go func() {
		text, err := a.opts.Recognizer.Recognize(ctx, a.opts.OnListening)
		a.post(func() { a.recognitionDone(sess, text, err) })
	}()
	return nil
}

func (a *Assistant) recognitionDone(sess *session, text string, err error) {
	if a.rec != sess {
		return
	}
	a.rec = nil
	sess.cancel()

	switch {
	case err == nil && text != "":
		a.bus.publish(Event{Type: EventTranscript, Text: text})
		if tok, ok := a.machine.Recognized(sess.tok, text); ok {
			a.beginVoiceTurn(tok, text)
		}

	case err == nil, errors.Is(err, stt.ErrNoSpeech):
		a.machine.Recognized(sess.tok, "")

	case errors.Is(err, stt.ErrPermissionDenied):
		a.log.Warn("microphone permission denied", "err", err)
		a.appendText(conversation.AITextStatic, PermissionDeniedText)
		a.notice(PermissionDeniedText)
		a.machine.RecognitionEnded(sess.tok, false)

	case errors.Is(err, context.Canceled):
		a.machine.RecognitionEnded(sess.tok, false)

	default:
		a.log.Warn("speech recognition failed", "err", err)
		a.appendText(conversation.AITextStatic, RecognitionFailedText)
		a.machine.RecognitionEnded(sess.tok, false)
	}
}

func (a *Assistant) cancelRecognition() {
	if a.rec == nil {
		return
	}
	a.rec.cancel()
	a.rec = nil
}
