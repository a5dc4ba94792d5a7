package devbackend_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vist/internal/backend"
	"vist/internal/devbackend"
	"vist/pkg/protocol"
)

func newBackend(t *testing.T) (*backend.Client, *httptest.Server) {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 41, 0, 0, time.UTC)
	srv, err := devbackend.New(devbackend.Options{
		DataDir: t.TempDir(),
		Now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := backend.New(ts.URL, "u-1", ts.Client())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c, ts
}

func drain(t *testing.T, c *backend.Client, text string) []protocol.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := c.Process(ctx, text)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	defer reply.Close()

	var out []protocol.Record
	for {
		rec, err := reply.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestProcessStreamsImage(t *testing.T) {
	c, ts := newBackend(t)

	recs := drain(t, c, "draw a lighthouse")
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %v", recs)
	}
	if recs[0].Kind != protocol.KindChat || recs[1].Kind != protocol.KindImageStart || recs[2].Kind != protocol.KindImage {
		t.Fatalf("unexpected kinds %v", recs)
	}

	res, err := ts.Client().Get(c.DataURL(recs[2].Content))
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("image status %d", res.StatusCode)
	}
	img, err := png.Decode(res.Body)
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if img.Bounds().Dx() != 256 {
		t.Fatalf("unexpected image size %v", img.Bounds())
	}
}

func TestProcessRecordsHistory(t *testing.T) {
	c, _ := newBackend(t)
	drain(t, c, "hello")

	h, err := c.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h) != 2 {
		t.Fatalf("expected 2 entries, got %+v", h)
	}
	if h[0].Role != "user" || h[0].Content != "hello" || h[0].Time != "09:41" {
		t.Fatalf("unexpected user entry %+v", h[0])
	}
	if h[1].Role != "assistant" || h[1].Type != protocol.HistoryText {
		t.Fatalf("unexpected assistant entry %+v", h[1])
	}
}

func TestProcessAddsReminder(t *testing.T) {
	c, _ := newBackend(t)
	drain(t, c, "remind me to water the plants at 18:00")

	rems, err := c.Reminders(context.Background())
	if err != nil {
		t.Fatalf("reminders: %v", err)
	}
	if len(rems) != 1 || rems[0].Title != "water the plants" || rems[0].Time != "18:00" || rems[0].Date != "2026-03-14" {
		t.Fatalf("unexpected reminders %+v", rems)
	}
}

func TestReminderCRUD(t *testing.T) {
	c, _ := newBackend(t)
	ctx := context.Background()

	r, err := c.AddReminder(ctx, protocol.ReminderRequest{Title: "standup", Time: "10:00", Category: protocol.CategoryWork})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.Color == "" {
		t.Fatalf("expected category color")
	}
	if _, err := c.UpdateReminder(ctx, r.ID, protocol.ReminderRequest{Title: "retro", Category: "bogus"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rems, _ := c.Reminders(ctx)
	if len(rems) != 1 || rems[0].Title != "retro" || rems[0].Category != protocol.CategoryPersonal {
		t.Fatalf("unexpected reminders %+v", rems)
	}
	if err := c.DeleteReminder(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var se *backend.StatusError
	if err := c.DeleteReminder(ctx, r.ID); !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAnalyzeImage(t *testing.T) {
	c, _ := newBackend(t)

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	desc, err := c.AnalyzeImage(context.Background(), path, "What is this?")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if desc != "A 4x3 PNG image." {
		t.Fatalf("unexpected description %q", desc)
	}

	h, _ := c.History(context.Background())
	if len(h) != 1 || h[0].Type != protocol.HistoryImageAnalysis || h[0].Prompt != "What is this?" || h[0].ImagePath == "" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestNutritionDay(t *testing.T) {
	c, _ := newBackend(t)
	ctx := context.Background()

	if err := c.AddMeal(ctx, protocol.Meal{Name: "apple", Calories: 95, Carbs: 25}); err != nil {
		t.Fatalf("add meal: %v", err)
	}
	if _, err := c.AddWater(ctx); err != nil {
		t.Fatalf("water: %v", err)
	}
	n, err := c.AddWater(ctx)
	if err != nil || n != 2 {
		t.Fatalf("water = %d, %v", n, err)
	}

	day, err := c.NutritionToday(ctx)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if day.TotalCalories != 95 || day.Water != 2 || len(day.Meals) != 1 || day.Meals[0].Icon != "🍎" || day.Macros.Carbs != 25 {
		t.Fatalf("unexpected day %+v", day)
	}

	sugg, err := c.SuggestFood(ctx, protocol.SuggestRequest{RemainingCalories: 100, IgnoreList: []string{"apple"}})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	for _, s := range sugg {
		if s.Calories > 100 || s.Name == "apple" {
			t.Fatalf("unexpected suggestion %+v", s)
		}
	}
}

func TestSetCurrentUserAndWeather(t *testing.T) {
	c, _ := newBackend(t)
	ctx := context.Background()

	if err := c.SetCurrentUser(ctx); err != nil {
		t.Fatalf("set current user: %v", err)
	}
	a, err := c.Weather(ctx, "Da Nang")
	if err != nil {
		t.Fatalf("weather: %v", err)
	}
	b, _ := c.Weather(ctx, "Da Nang")
	if a.City != "Da Nang" || a.Temp != b.Temp || len(a.Hourly) != 6 {
		t.Fatalf("unexpected weather %+v", a)
	}
}
