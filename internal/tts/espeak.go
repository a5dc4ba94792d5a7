//go:build espeak

package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
vist_espeak_say(const char *text, const char *voice)
{
	if (!text)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { 0 };
	specs.languages = voice;
	espeak_SetVoiceByProperties(&specs);

	espeak_Synth(text, 500, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}

static void
vist_espeak_cancel(void)
{
	espeak_Cancel();
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// libespeak is not reentrant.
var espeakMu sync.Mutex

// Espeak speaks through libespeak-ng.
type Espeak struct {
	Voice string
}

func NewEspeak(voice string) *Espeak {
	if voice == "" {
		voice = "en"
	}
	return &Espeak{Voice: voice}
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(e.Voice)
	defer C.free(unsafe.Pointer(cvoice))

	done := make(chan C.int, 1)
	go func() {
		espeakMu.Lock()
		defer espeakMu.Unlock()
		done <- C.vist_espeak_say(ctext, cvoice)
	}()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak_say failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.vist_espeak_cancel()
		<-done
		return context.Cause(ctx)
	}
}
