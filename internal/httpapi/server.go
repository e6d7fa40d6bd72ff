package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/parlons/internal/config"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/observability"
	"github.com/ent0n29/parlons/internal/tutor"
)

const maxUploadBytes = 32 << 20

// Tutor is the conversation surface the HTTP layer drives.
type Tutor interface {
	HandleTurn(ctx context.Context, userID, scenario, text string) (tutor.Result, error)
	StartScenario(ctx context.Context, userID, scenario string, forceReset bool) (tutor.Result, error)
	Reset(ctx context.Context, userID string) error
	DeleteRecentAudio(ctx context.Context, userID string) ([]string, error)
	SaveRecording(ctx context.Context, userID, filename string, body io.Reader) (tutor.Recording, error)
	ActiveSessions(ctx context.Context) (int, error)
	SpeechProvider() string
	LLMProvider() string
}

// AudioFiles resolves public audio paths to files on disk.
type AudioFiles interface {
	Resolve(rel string) (string, error)
}

type Server struct {
	cfg     config.Config
	tutor   Tutor
	audio   AudioFiles
	metrics *observability.Metrics
	log     *logging.Logger
}

func New(cfg config.Config, t Tutor, audio AudioFiles, metrics *observability.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if strings.TrimSpace(cfg.AudioURLPrefix) == "" {
		cfg.AudioURLPrefix = "/temp_audio"
	}
	return &Server{
		cfg:     cfg,
		tutor:   t,
		audio:   audio,
		metrics: metrics,
		log:     log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.cfg.AllowAnyOrigin {
		r.Use(allowAnyOrigin)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/debug/stages", s.handleStages)

	r.Route("/api", func(r chi.Router) {
		r.Post("/respond", s.handleRespond)
		r.Post("/start_conversation", s.handleStartConversation)
		r.Post("/reset_session", s.handleResetSession)
		r.Post("/delete-audio", s.handleDeleteAudio)
		r.Post("/transcribe", s.handleTranscribe)
	})

	r.Get(s.cfg.AudioURLPrefix+"/*", s.handleAudio)

	if dir := strings.TrimSpace(s.cfg.StaticDir); dir != "" {
		r.NotFound(spaHandler(dir))
	}
	return r
}

type respondRequest struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Scenario string `json:"scenario"`
}

type startRequest struct {
	Scenario   string `json:"scenario"`
	UserID     string `json:"userId"`
	ForceReset *bool  `json:"force_reset"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	res, err := s.tutor.HandleTurn(r.Context(), req.UserID, req.Scenario, req.Message)
	if err != nil {
		s.respondTutorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	forceReset := true
	if req.ForceReset != nil {
		forceReset = *req.ForceReset
	}
	res, err := s.tutor.StartScenario(r.Context(), req.UserID, req.Scenario, forceReset)
	if err != nil {
		s.respondTutorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if err := s.tutor.Reset(r.Context(), req.UserID); err != nil {
		s.respondTutorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Session reset"})
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	deleted, err := s.tutor.DeleteRecentAudio(r.Context(), req.UserID)
	if err != nil {
		s.respondTutorError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with an audio file")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", tutor.ErrMissingAudio.Error())
		return
	}
	defer file.Close()

	rec, err := s.tutor.SaveRecording(r.Context(), r.FormValue("user_id"), header.Filename, file)
	if err != nil {
		s.respondTutorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		http.NotFound(w, r)
		return
	}
	// r.URL.Path is decoded exactly once; chi's wildcard may still be raw.
	rel := strings.TrimPrefix(r.URL.Path, s.cfg.AudioURLPrefix+"/")
	path, err := s.audio.Resolve(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := s.tutor.ActiveSessions(r.Context())
	status := "healthy"
	if err != nil {
		status = "degraded"
		s.log.Warn().Err(err).Msg("count sessions failed")
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"active_sessions": active,
		"tts_provider":    s.tutor.SpeechProvider(),
		"llm_provider":    s.tutor.LLMProvider(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.tutor.ActiveSessions(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "session store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStages(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) respondTutorError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *tutor.InputError
	if errors.As(err, &ie) {
		prefix := "invalid_"
		if errors.Is(ie.Err, tutor.ErrMissingUserID) || errors.Is(ie.Err, tutor.ErrEmptyMessage) || errors.Is(ie.Err, tutor.ErrMissingAudio) {
			prefix = "missing_"
		}
		respondError(w, http.StatusBadRequest, prefix+strings.ToLower(ie.Field), ie.Error())
		return
	}
	s.log.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	respondError(w, http.StatusServiceUnavailable, "unavailable", "session store unavailable")
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// spaHandler serves files from dir and falls back to its index.html so
// client-side routes resolve.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			respondError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		clean := filepath.Clean("/" + r.URL.Path)
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
		if err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
