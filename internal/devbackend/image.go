package devbackend

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
)

const imageSize = 256

// RenderImage draws a gradient seeded by prompt into dir and returns the file name.
func RenderImage(dir, prompt string) (string, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(prompt)))
	seed := h.Sum32()

	from := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 0xff}
	to := color.RGBA{R: 0xff - from.R, G: 0xff - from.G, B: 0xff - from.B, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			t := float64(x+y) / float64(2*(imageSize-1))
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: 0xff,
			})
		}
	}

	name := "gen-" + uuid.NewString() + ".png"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	return name, nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

// Describer describes an uploaded image.
type Describer interface {
	Describe(ctx context.Context, data []byte, prompt string) (string, error)
}

// LLMDescriber sends the image inline to a vision-capable chat model.
type LLMDescriber struct {
	Client openai.Client
	Model  string
}

func (d *LLMDescriber) Describe(ctx context.Context, data []byte, prompt string) (string, error) {
	model := d.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	url := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := d.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
			}),
		},
		Model: model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// MetadataDescriber reports what can be read from the file itself.
type MetadataDescriber struct{}

func (MetadataDescriber) Describe(_ context.Context, data []byte, _ string) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return fmt.Sprintf("A %dx%d %s image.", cfg.Width, cfg.Height, strings.ToUpper(format)), nil
}
