package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/parlons/internal/config"
	"github.com/ent0n29/parlons/internal/httpapi"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/observability"
	"github.com/ent0n29/parlons/internal/scenario"
	"github.com/ent0n29/parlons/internal/session"
	"github.com/ent0n29/parlons/internal/stt"
	"github.com/ent0n29/parlons/internal/tts"
	"github.com/ent0n29/parlons/internal/tutor"
	"github.com/ent0n29/parlons/internal/workspace"
)

const janitorInterval = time.Minute

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Tutor     *tutor.Service
	Sessions  *session.Manager
	Workspace *workspace.Manager
	Catalog   *scenario.Catalog
	Metrics   *observability.Metrics
	Speech    SpeechInfo

	// Cleanup should be called on shutdown to release external resources (DB, Redis, janitor).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log *logging.Logger) (*BuildResult, error) {
	if log == nil {
		log = logging.Nop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	catalog, err := scenario.Load(cfg.ScenariosFile)
	if err != nil {
		return nil, fmt.Errorf("scenario catalog init failed: %w", err)
	}

	ws, err := workspace.New(cfg.TempAudioRoot, cfg.AudioURLPrefix, log.Sub("workspace"))
	if err != nil {
		return nil, fmt.Errorf("workspace init failed: %w", err)
	}

	store, err := session.NewStore(ctx, session.StoreType(cfg.SessionStore), session.StoreOptions{
		RedisURL:    cfg.RedisURL,
		RedisTTL:    cfg.RedisSessionTTL,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}
	sessions := session.NewManager(store, cfg.HistoryMaxTurns)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	if mem, ok := store.(*session.InMemoryStore); ok && cfg.SessionIdleTTL > 0 {
		sessionLog := log.Sub("session")
		mem.SetExpireHook(func(s *session.Session) {
			sessionLog.Debug().Str("user_id", s.UserID).Msg("idle session expired")
			ws.CleanupUser(s.UserID, nil)
			if n, err := store.Count(janitorCtx); err == nil {
				metrics.SetActiveSessions(n)
			}
		})
		mem.StartJanitor(janitorCtx, cfg.SessionIdleTTL, janitorInterval)
	}

	llmClient, llmDetail, err := resolveLLM(cfg)
	if err != nil {
		stopJanitor()
		_ = store.Close()
		return nil, err
	}

	speech := resolveSpeech(ctx, cfg, log.Sub("tts"))
	pipeline := tts.NewPipeline(speech.primary, speech.fallback, tts.PipelineConfig{
		MaxAttempts: cfg.TTSMaxRetries,
		Backoff:     cfg.TTSRetryBackoff,
		MaxBackoff:  cfg.TTSRetryBackoff,
	}, log.Sub("tts"), metrics)

	svc, err := tutor.NewService(tutor.Config{
		MaxLLMTokens:     cfg.LLMMaxTokens,
		KeepAudioPerKind: cfg.AudioKeepPerKind,
		SpeechMaxChars:   cfg.TTSMaxChars,
	}, tutor.Deps{
		Sessions:    sessions,
		Workspace:   ws,
		Catalog:     catalog,
		LLM:         llmClient,
		Speech:      pipeline,
		Transcriber: stt.Placeholder{},
		Metrics:     metrics,
		Logger:      log.Sub("tutor"),
	})
	if err != nil {
		stopJanitor()
		_ = store.Close()
		return nil, err
	}

	api := httpapi.New(cfg, svc, ws, metrics, log.Sub("http"))

	log.Info().
		Str("session_store", cfg.SessionStore).
		Str("llm", llmDetail).
		Str("tts", speech.Detail).
		Int("scenarios", len(catalog.Names())).
		Msg("app built")

	cleanup := func() error {
		stopJanitor()
		var errs []error
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Tutor:     svc,
		Sessions:  sessions,
		Workspace: ws,
		Catalog:   catalog,
		Metrics:   metrics,
		Speech:    speech.SpeechInfo,
		Cleanup:   cleanup,
	}, nil
}
