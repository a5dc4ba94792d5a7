// Package audioconv turns audio files into mono float32 PCM at 16 kHz, the
// input format of the whisper transcriber.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// SampleRate is the output rate of every decoder in this package.
const SampleRate = 16000

var (
	// ErrUnsupported is returned for containers no decoder understands.
	ErrUnsupported = errors.New("unsupported audio format")
	// ErrOpusDisabled is returned for Ogg/Opus input in builds without the opus tag.
	ErrOpusDisabled = errors.New("ogg/opus support not compiled in (build with -tags opus)")
)

type Options struct {
	// MaxSamples truncates the output; 0 keeps everything.
	MaxSamples int
}

// ConvertFile decodes the file at path. The extension picks the decoder;
// unknown extensions are sniffed by their magic bytes.
func ConvertFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Convert(ctx, f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."), opt)
}

// Convert decodes r. format is a file extension without the dot or empty to sniff.
func Convert(ctx context.Context, r io.ReadSeeker, format string, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case "wav":
		return decodeWAV(r, opt)
	case "mp3":
		return decodeMP3(r, opt)
	case "ogg", "oga", "opus":
		return decodeOgg(r, opt)
	}

	magic, err := bufio.NewReader(r).Peek(4)
	if err != nil && len(magic) < 4 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch string(magic) {
	case "RIFF":
		return decodeWAV(r, opt)
	case "OggS":
		return decodeOgg(r, opt)
	}
	if string(magic[:3]) == "ID3" || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0) {
		return decodeMP3(r, opt)
	}
	return nil, fmt.Errorf("%w: %q (supported: wav, mp3, ogg vorbis, ogg opus)", ErrUnsupported, format)
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker, opt Options) ([]float32, error) {
	x, verr := decodeOggVorbis(r, opt)
	if verr == nil {
		return x, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	x, oerr := decodeOggOpus(r, opt)
	if oerr != nil {
		return nil, fmt.Errorf("ogg: vorbis: %v; opus: %w", verr, oerr)
	}
	return x, nil
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}

	return finish(intsToFloat32(pb.Data, bd), ch, sr, opt), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always emits interleaved stereo.
	return finish(int16sToFloat32(ints), 2, sr, opt), nil
}

func decodeOggVorbis(r io.Reader, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return finish(pcm, format.Channels, format.SampleRate, opt), nil
}

func finish(x []float32, channels, rate int, opt Options) []float32 {
	x = Downmix(x, channels)
	x = Resample(x, rate, SampleRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}
