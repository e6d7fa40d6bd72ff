package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/parlons/internal/llm"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/observability"
	"github.com/ent0n29/parlons/internal/policy"
	"github.com/ent0n29/parlons/internal/scenario"
	"github.com/ent0n29/parlons/internal/session"
	"github.com/ent0n29/parlons/internal/stt"
	"github.com/ent0n29/parlons/internal/tts"
	"github.com/ent0n29/parlons/internal/workspace"
)

const (
	// FallbackReply answers a learner turn when the model is unavailable.
	FallbackReply = "Désolé, je ne peux pas répondre maintenant."
	// DefaultGreeting is returned when a conversation resumes without history.
	DefaultGreeting = "Bonjour !"

	defaultRecordingExt = ".webm"
	maxRecordingBytes   = 25 << 20
)

// Result is what a turn returns to the caller. AudioURL is nil when speech
// synthesis degraded.
type Result struct {
	Reply    string  `json:"response"`
	AudioURL *string `json:"audio_url"`
}

// Recording describes a stored learner upload.
type Recording struct {
	UserID     string `json:"user_id"`
	Path       string `json:"-"`
	URL        string `json:"audio_path"`
	Transcript string `json:"transcript,omitempty"`
}

// Synthesizer is satisfied by *tts.Pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string) tts.Outcome
	Format() string
	ProviderName() string
}

type Config struct {
	// MaxLLMTokens caps per-scenario token budgets when positive.
	MaxLLMTokens int
	// KeepAudioPerKind bounds reply and recording files per user.
	KeepAudioPerKind int
	// SpeechMaxChars caps text sent to synthesis; zero leaves it to providers.
	SpeechMaxChars int
}

type Deps struct {
	Sessions    *session.Manager
	Workspace   *workspace.Manager
	Catalog     *scenario.Catalog
	LLM         llm.Client
	Speech      Synthesizer
	Transcriber stt.Transcriber
	Metrics     *observability.Metrics
	Logger      *logging.Logger
}

// Service ties sessions, the model, speech synthesis and the audio workspace
// into conversational turns.
type Service struct {
	sessions    *session.Manager
	workspace   *workspace.Manager
	catalog     *scenario.Catalog
	llm         llm.Client
	speech      Synthesizer
	transcriber stt.Transcriber
	metrics     *observability.Metrics
	log         *logging.Logger
	cfg         Config
	now         func() time.Time
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("tutor: session manager is required")
	case deps.Workspace == nil:
		return nil, fmt.Errorf("tutor: workspace is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("tutor: scenario catalog is required")
	case deps.LLM == nil:
		return nil, fmt.Errorf("tutor: llm client is required")
	case deps.Speech == nil:
		return nil, fmt.Errorf("tutor: speech synthesizer is required")
	}
	if cfg.KeepAudioPerKind <= 0 {
		cfg.KeepAudioPerKind = 2
	}
	if deps.Transcriber == nil {
		deps.Transcriber = stt.Placeholder{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	return &Service{
		sessions:    deps.Sessions,
		workspace:   deps.Workspace,
		catalog:     deps.Catalog,
		llm:         deps.LLM,
		speech:      deps.Speech,
		transcriber: deps.Transcriber,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

// HandleTurn answers a learner utterance within a scenario. Only missing
// input is reported as an error; model and speech failures degrade.
func (s *Service) HandleTurn(ctx context.Context, userID, scenarioName, text string) (Result, error) {
	userID, err := checkUserID("userId", userID)
	if err != nil {
		return Result{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, inputError("message", ErrEmptyMessage)
	}

	started := time.Now()
	log := s.log.WithUser(userID)
	unlock := s.sessions.Lock(userID)
	defer unlock()

	sess, err := s.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	sc := s.catalog.Resolve(scenarioName)
	sess.SetScenario(sc.Name)

	prior := append([]session.Turn(nil), sess.History...)
	s.sessions.AppendTurn(sess, session.RoleUser, text)
	log.Info().
		Str("scenario", sc.Name).
		Str("text", policy.RedactForLog(text, policy.DefaultLogChars)).
		Msg("learner turn")

	reply := s.complete(ctx, log, sc.Name, prior, text, FallbackReply)
	s.sessions.AppendTurn(sess, session.RoleAssistant, reply)
	s.save(ctx, log, sess)

	result := Result{Reply: reply, AudioURL: s.speak(ctx, log, userID, reply)}
	s.metrics.IncTurn("respond")
	s.metrics.ObserveStage(observability.StageTurn, time.Since(started))
	s.refreshActive(ctx)
	return result, nil
}

// StartScenario opens a scenario. With forceReset the session starts over and
// the tutor speaks first; otherwise the last tutor reply is repeated without
// audio.
func (s *Service) StartScenario(ctx context.Context, userID, scenarioName string, forceReset bool) (Result, error) {
	userID, err := checkUserID("userId", userID)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	log := s.log.WithUser(userID)
	unlock := s.sessions.Lock(userID)
	defer unlock()

	sc := s.catalog.Resolve(scenarioName)

	if !forceReset {
		sess, err := s.sessions.GetOrCreate(ctx, userID)
		if err != nil {
			return Result{}, fmt.Errorf("load session: %w", err)
		}
		reply, ok := sess.LastAssistantReply()
		if !ok {
			reply = DefaultGreeting
		}
		s.metrics.IncTurn("resume")
		return Result{Reply: reply}, nil
	}

	if err := s.sessions.Reset(ctx, userID); err != nil {
		return Result{}, err
	}
	sess, err := s.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	sess.SetScenario(sc.Name)
	log.Info().Str("scenario", sc.Name).Msg("scenario started")

	reply := s.complete(ctx, log, sc.Name, nil, s.catalog.StarterPrompt(sc.Name), s.catalog.StarterExample(sc.Name))
	s.sessions.AppendTurn(sess, session.RoleAssistant, reply)
	s.save(ctx, log, sess)

	result := Result{Reply: reply, AudioURL: s.speak(ctx, log, userID, reply)}
	s.metrics.IncTurn("start")
	s.metrics.ObserveStage(observability.StageTurn, time.Since(started))
	s.refreshActive(ctx)
	return result, nil
}

// Reset drops the learner's session.
func (s *Service) Reset(ctx context.Context, userID string) error {
	userID, err := checkUserID("userId", userID)
	if err != nil {
		return err
	}
	unlock := s.sessions.Lock(userID)
	defer unlock()

	if err := s.sessions.Reset(ctx, userID); err != nil {
		return err
	}
	s.log.WithUser(userID).Info().Msg("session reset")
	s.metrics.IncTurn("reset")
	s.refreshActive(ctx)
	return nil
}

// DeleteRecentAudio applies retention to the learner's workspace and returns
// the names of removed files.
func (s *Service) DeleteRecentAudio(ctx context.Context, userID string) ([]string, error) {
	userID, err := checkUserID("userId", userID)
	if err != nil {
		return nil, err
	}
	removed, err := s.workspace.PruneUser(userID, []string{workspace.KindReply, workspace.KindRecording}, s.cfg.KeepAudioPerKind)
	if err != nil {
		return nil, workspaceError("userId", err)
	}
	s.metrics.AddPruned(len(removed))
	names := make([]string, 0, len(removed))
	for _, p := range removed {
		names = append(names, filepath.Base(p))
	}
	return names, nil
}

// SaveRecording stores an uploaded learner recording and tries to transcribe
// it. A missing transcriber is not an error.
func (s *Service) SaveRecording(ctx context.Context, userID, filename string, body io.Reader) (Recording, error) {
	userID, err := checkUserID("user_id", userID)
	if err != nil {
		return Recording{}, err
	}
	if body == nil {
		return Recording{}, inputError("audio", ErrMissingAudio)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = defaultRecordingExt
	}

	path, err := s.workspace.NewFilePath(userID, workspace.KindRecording, ext, s.now())
	if err != nil {
		return Recording{}, workspaceError("user_id", fmt.Errorf("allocate recording path: %w", err))
	}
	f, err := os.Create(path)
	if err != nil {
		return Recording{}, fmt.Errorf("create recording: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(body, maxRecordingBytes))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil || n == 0 {
		_ = os.Remove(path)
		if err != nil {
			return Recording{}, fmt.Errorf("store recording: %w", err)
		}
		return Recording{}, inputError("audio", ErrMissingAudio)
	}

	url, err := s.workspace.PublicURL(path)
	if err != nil {
		return Recording{}, err
	}
	rec := Recording{UserID: userID, Path: path, URL: url}
	log := s.log.WithUser(userID)
	log.Info().Str("file", filepath.Base(path)).Int64("bytes", n).Msg("recording saved")

	transcript, err := s.transcriber.Transcribe(ctx, path)
	if err != nil {
		log.Debug().Err(err).Msg("transcription skipped")
	} else {
		rec.Transcript = strings.TrimSpace(transcript)
	}
	return rec, nil
}

// ActiveSessions reports how many sessions are stored.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return s.sessions.ActiveCount(ctx)
}

// SpeechProvider names the primary synthesis backend.
func (s *Service) SpeechProvider() string { return s.speech.ProviderName() }

// LLMProvider names the model backend.
func (s *Service) LLMProvider() string { return s.llm.Name() }

func (s *Service) complete(ctx context.Context, log *logging.Logger, scenarioName string, prior []session.Turn, prompt, fallback string) string {
	maxTokens, temperature := s.catalog.Settings(scenarioName, s.cfg.MaxLLMTokens)
	req := llm.Request{
		Messages:    llm.BuildMessages(s.catalog.SystemPrompt(scenarioName), prior, prompt),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	started := time.Now()
	reply, err := s.llm.Complete(ctx, req)
	s.metrics.ObserveStage(observability.StageLLM, time.Since(started))
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		if err == nil {
			err = errors.New("empty completion")
		}
		log.Error().Err(err).Str("scenario", scenarioName).Msg("llm failed; using fallback reply")
		s.metrics.IncLLMError(scenarioName)
		return fallback
	}
	log.Info().Str("reply", policy.RedactForLog(reply, policy.DefaultLogChars)).Msg("llm reply")
	return reply
}

func (s *Service) speak(ctx context.Context, log *logging.Logger, userID, reply string) *string {
	text := tts.PrepareSpeechText(reply, s.cfg.SpeechMaxChars)
	if text == "" {
		return nil
	}
	path, err := s.workspace.NewFilePath(userID, workspace.KindReply, s.speech.Format(), s.now())
	if err != nil {
		log.Error().Err(err).Msg("allocate reply audio path failed")
		return nil
	}

	outcome := s.speech.Synthesize(ctx, text, path)
	if !outcome.OK() {
		log.Warn().Str("provider", outcome.Provider).Int("attempts", outcome.Attempts).Msg("tts degraded")
		return nil
	}
	url, err := s.workspace.PublicURL(outcome.Path)
	if err != nil {
		log.Error().Err(err).Msg("public audio url failed")
		return nil
	}

	if removed, err := s.DeleteRecentAudio(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("audio retention failed")
	} else if len(removed) > 0 {
		log.Debug().Strs("files", removed).Msg("old audio pruned")
	}
	return &url
}

func (s *Service) save(ctx context.Context, log *logging.Logger, sess *session.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Msg("save session failed")
	}
}

func (s *Service) refreshActive(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.sessions.ActiveCount(ctx); err == nil {
		s.metrics.SetActiveSessions(n)
	}
}
