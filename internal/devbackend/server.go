// Package devbackend is a local stand-in for the assistant server. It keeps
// everything in memory and serves the same endpoints the client uses.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vist/pkg/protocol"
)

const (
	maxUpload   = 20 << 20
	timeLayout  = "15:04"
	dateLayout  = "2006-01-02"
	stampLayout = "2006-01-02 15:04:05"
)

type Options struct {
	// DataDir holds generated and uploaded images served under /data/.
	DataDir   string
	Planner   Planner
	Describer Describer
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	opts  Options
	log   *slog.Logger
	store *store
}

func New(opts Options) (*Server, error) {
	if opts.DataDir == "" {
		return nil, errors.New("devbackend: data dir is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if opts.Planner == nil {
		opts.Planner = RulePlanner{}
	}
	if opts.Describer == nil {
		opts.Describer = MetadataDescriber{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, log: logger, store: newStore()}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /data/", http.StripPrefix("/data/", http.FileServer(http.Dir(s.opts.DataDir))))

	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/chat_history", s.handleHistory)
	mux.HandleFunc("POST /api/analyze_image", s.handleAnalyzeImage)
	mux.HandleFunc("POST /api/set_current_user", s.handleSetCurrentUser)
	mux.HandleFunc("GET /api/weather_data", s.handleWeather)

	mux.HandleFunc("GET /api/reminders", s.handleReminders)
	mux.HandleFunc("POST /api/reminders", s.handleAddReminder)
	mux.HandleFunc("PUT /api/reminders/{id}", s.handleUpdateReminder)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder)

	mux.HandleFunc("GET /api/nutrition/today", s.handleNutritionToday)
	mux.HandleFunc("POST /api/nutrition/add_meal", s.handleAddMeal)
	mux.HandleFunc("POST /api/nutrition/water", s.handleWater)
	mux.HandleFunc("POST /api/nutrition/estimate", s.handleEstimate)
	mux.HandleFunc("POST /api/nutrition/voice_command", s.handleVoiceCommand)
	mux.HandleFunc("POST /api/nutrition/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/nutrition/profile", s.handleProfile)
	mux.HandleFunc("POST /api/nutrition/profile", s.handleSaveProfile)
	mux.HandleFunc("POST /api/nutrition/analyze_image", s.handleAnalyzeMeal)

	return withRequestLogging(mux, s.log)
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("dev backend listening", "addr", ln.Addr().String(), "data", s.opts.DataDir)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req protocol.ProcessRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UID == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	plan, err := s.opts.Planner.Plan(r.Context(), text)
	if err != nil {
		s.log.Warn("plan failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	now := s.opts.Now()
	s.store.addHistory(req.UID, s.entry(now, protocol.HistoryEntry{Type: protocol.HistoryText, Role: "user", Content: text}))

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	emit := func(kind protocol.Kind, content string) bool {
		line, err := protocol.Record{Kind: kind, Content: content}.Encode()
		if err != nil {
			return false
		}
		if _, err := w.Write(line); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for _, t := range plan.Tasks {
		if r.Context().Err() != nil {
			return
		}
		switch t.Type {
		case TaskChat:
			s.store.addHistory(req.UID, s.entry(now, protocol.HistoryEntry{Type: protocol.HistoryText, Role: "assistant", Content: t.Content}))
			if !emit(protocol.KindChat, t.Content) {
				return
			}
		case TaskImage:
			if !emit(protocol.KindImageStart, t.Content) {
				return
			}
			name, err := RenderImage(s.opts.DataDir, t.Content)
			if err != nil {
				s.log.Warn("render image failed", "err", err)
				continue
			}
			s.store.addHistory(req.UID, s.entry(now, protocol.HistoryEntry{Type: protocol.HistoryImage, Role: "assistant", ImagePath: name, Prompt: t.Content}))
			if !emit(protocol.KindImage, name) {
				return
			}
		case TaskReminder:
			date := t.Date
			if date == "" {
				date = now.Format(dateLayout)
			}
			rem := s.store.addReminder(req.UID, protocol.ReminderRequest{Title: t.Title, Time: t.Time, Date: date, Category: t.Category})
			s.log.Debug("reminder added", "uid", req.UID, "id", rem.ID)
		}
	}
}

func (s *Server) entry(now time.Time, e protocol.HistoryEntry) protocol.HistoryEntry {
	e.Time = now.Format(timeLayout)
	e.Timestamp = now.Format(stampLayout)
	return e
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	writeJSON(w, http.StatusOK, protocol.HistoryResponse{History: s.store.history(uid)})
}

func (s *Server) handleSetCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req protocol.UserRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UID == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	s.store.setCurrent(req.UID)
	s.log.Info("current user", "uid", req.UID)
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok", UID: req.UID})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.saveUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if prompt == "" {
		prompt = "Describe this image"
	}

	desc, err := s.opts.Describer.Describe(r.Context(), data, prompt)
	if err != nil {
		s.log.Warn("describe failed", "err", err)
		writeJSON(w, http.StatusOK, protocol.AnalyzeImageResponse{Error: err.Error()})
		return
	}

	if uid := r.FormValue("uid"); uid != "" {
		s.store.addHistory(uid, s.entry(s.opts.Now(), protocol.HistoryEntry{
			Type: protocol.HistoryImageAnalysis, Role: "assistant", ImagePath: name, Prompt: prompt, Analysis: desc,
		}))
	}
	writeJSON(w, http.StatusOK, protocol.AnalyzeImageResponse{Description: desc})
}

// saveUpload stores the multipart "image" field under the data dir.
func (s *Server) saveUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, "", fmt.Errorf("parse form: %w", err)
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		return nil, "", fmt.Errorf("image is required: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if ext == "" {
		ext = ".bin"
	}
	name := "upload-" + uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.opts.DataDir, name), data, 0o644); err != nil {
		return nil, "", fmt.Errorf("store image: %w", err)
	}
	return data, name, nil
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, weather(r.URL.Query().Get("city")))
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.store.reminders(uid))
}

func (s *Server) decodeReminder(w http.ResponseWriter, r *http.Request) (protocol.ReminderRequest, bool) {
	var req protocol.ReminderRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	if req.UID == "" || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid and title are required"))
		return req, false
	}
	return req, true
}

func (s *Server) handleAddReminder(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReminder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, s.store.addReminder(req.UID, req))
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid reminder id"))
		return
	}
	req, ok := s.decodeReminder(w, r)
	if !ok {
		return
	}
	rem, err := s.store.updateReminder(req.UID, id, req)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("reminder %d: %w", id, err))
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid reminder id"))
		return
	}
	if err := s.store.deleteReminder(r.URL.Query().Get("uid"), id); err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("reminder %d: %w", id, err))
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "deleted"})
}

func (s *Server) today() string {
	return s.opts.Now().Format(dateLayout)
}

func (s *Server) handleNutritionToday(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.store.nutrition(uid, s.today()))
}

func (s *Server) handleAddMeal(w http.ResponseWriter, r *http.Request) {
	var req protocol.AddMealRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UID == "" || strings.TrimSpace(req.Meal.Name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid and meal name are required"))
		return
	}
	if req.Meal.Time == "" {
		req.Meal.Time = s.opts.Now().Format(timeLayout)
	}
	if f, ok := lookupFood(req.Meal.Name); ok && req.Meal.Icon == "" {
		req.Meal.Icon = f.icon
	}
	s.store.addMeal(req.UID, s.today(), req.Meal)
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request) {
	var req protocol.WaterRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.UID == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	writeJSON(w, http.StatusOK, protocol.WaterResponse{Water: s.store.addWater(req.UID, s.today())})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req protocol.EstimateRequest
	if err := decodeJSON(r.Body, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	e := estimate(req.Name)
	e.Time = s.opts.Now().Format(timeLayout)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleVoiceCommand(w http.ResponseWriter, r *http.Request) {
	var req protocol.VoiceCommandRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := voiceCommand(req.Text)
	if resp.Intent == protocol.IntentFillProfile && req.UID != "" {
		s.store.saveProfile(req.UID, resp.Data)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req protocol.SuggestRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SuggestResponse{Suggestion: suggest(req)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.store.profile(uid))
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req protocol.ProfileRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.UID == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid is required"))
		return
	}
	s.store.saveProfile(req.UID, req.Data)
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleAnalyzeMeal(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.saveUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := "meal"
	if desc, err := s.opts.Describer.Describe(r.Context(), data, "Name the dish in this photo in at most three words."); err == nil && desc != "" {
		name = strings.TrimRight(strings.TrimSpace(desc), ".")
	}
	e := estimate(name)
	e.Time = s.opts.Now().Format(timeLayout)
	writeJSON(w, http.StatusOK, e)
}

func decodeJSON(body io.Reader, target any) error {
	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error()})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withRequestLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", status, "bytes", rec.bytes, "duration_ms", time.Since(start).Milliseconds())
	})
}
