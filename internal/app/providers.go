package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/parlons/internal/config"
	"github.com/ent0n29/parlons/internal/llm"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/tts"
)

// SpeechInfo describes which synthesis providers were resolved at startup.
type SpeechInfo struct {
	Primary  string
	Fallback string
	Detail   string
}

type speechSetup struct {
	SpeechInfo
	primary  tts.Provider
	fallback tts.Provider
}

func resolveLLM(cfg config.Config) (llm.Client, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if mode == "" {
		mode = "auto"
	}

	mistral := func() (llm.Client, error) {
		return llm.NewChatCompletionsClient(llm.ChatConfig{
			Provider:   "mistral",
			APIKey:     cfg.MistralAPIKey,
			BaseURL:    cfg.MistralBaseURL,
			Model:      cfg.MistralModel,
			Timeout:    cfg.LLMTimeout,
			RandomSeed: cfg.LLMRandomSeed,
		}, nil)
	}
	openai := func() (llm.Client, error) {
		return llm.NewChatCompletionsClient(llm.ChatConfig{
			Provider: "openai",
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIChatModel,
			Timeout:  cfg.LLMTimeout,
		}, nil)
	}

	switch mode {
	case "mistral":
		c, err := mistral()
		if err != nil {
			return nil, "", fmt.Errorf("LLM_PROVIDER=mistral: %w", err)
		}
		return c, "mistral", nil
	case "openai":
		c, err := openai()
		if err != nil {
			return nil, "", fmt.Errorf("LLM_PROVIDER=openai: %w", err)
		}
		return c, "openai", nil
	case "mock":
		return llm.NewMockClient(), "mock", nil
	case "auto":
		hasMistral := strings.TrimSpace(cfg.MistralAPIKey) != ""
		hasOpenAI := strings.TrimSpace(cfg.OpenAIAPIKey) != ""
		switch {
		case hasMistral && hasOpenAI:
			primary, err := mistral()
			if err != nil {
				return nil, "", err
			}
			secondary, err := openai()
			if err != nil {
				return nil, "", err
			}
			return llm.NewFallbackClient(primary, secondary), "mistral (openai fallback)", nil
		case hasMistral:
			c, err := mistral()
			return c, "mistral", err
		case hasOpenAI:
			c, err := openai()
			return c, "openai", err
		default:
			return llm.NewMockClient(), "mock (no api key)", nil
		}
	default:
		return nil, "", fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|mistral|openai|mock)", cfg.LLMProvider)
	}
}

func newSpeechRegistry(ctx context.Context, cfg config.Config) *tts.Registry {
	r := tts.NewRegistry()
	r.Register("dummy", func() (tts.Provider, error) { return tts.DummyProvider{}, nil })
	r.Register("openai", func() (tts.Provider, error) {
		return tts.NewOpenAIProvider(tts.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAITTSModel,
			Voice:   cfg.OpenAITTSVoice,
			Timeout: cfg.TTSTimeout,
		}, nil)
	})
	r.Register("minimax", func() (tts.Provider, error) {
		return tts.NewMinimaxProvider(tts.MinimaxConfig{
			APIKey:  cfg.MinimaxAPIKey,
			BaseURL: cfg.MinimaxBaseURL,
			VoiceID: cfg.MinimaxVoiceID,
			Timeout: cfg.TTSTimeout,
		}, nil)
	})
	r.Register("google", func() (tts.Provider, error) {
		return tts.NewGoogleProvider(ctx, tts.GoogleConfig{
			APIKey:          cfg.GoogleTTSAPIKey,
			CredentialsFile: cfg.GoogleCredentialsFile,
			Voice:           cfg.GoogleTTSVoice,
		}, nil)
	})
	r.Register("elevenlabs", func() (tts.Provider, error) {
		return tts.NewElevenLabsProvider(tts.ElevenLabsConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
			VoiceID:   cfg.ElevenLabsTTSVoice,
			ModelID:   cfg.ElevenLabsTTSModel,
			Timeout:   cfg.TTSTimeout,
		})
	})
	r.Register("command", func() (tts.Provider, error) {
		return tts.NewCommandProvider(cfg.LocalTTSCommand, cfg.LocalTTSFormat, cfg.TTSTimeout)
	})
	return r
}

// resolveSpeech picks the primary and optional fallback providers. A primary
// that cannot be initialised is replaced with the dummy provider so turns
// still complete; a broken fallback is dropped.
func resolveSpeech(ctx context.Context, cfg config.Config, log *logging.Logger) speechSetup {
	registry := newSpeechRegistry(ctx, cfg)

	primaryName := strings.TrimSpace(cfg.TTSProvider)
	if primaryName == "" {
		primaryName = "dummy"
	}
	primary, err := registry.Resolve(primaryName)
	detail := primaryName
	if err != nil {
		log.Error().Err(err).Str("provider", primaryName).Msg("tts provider unavailable, using dummy")
		primary = tts.DummyProvider{}
		detail = "dummy (" + primaryName + " unavailable)"
	}

	setup := speechSetup{primary: primary}
	setup.Primary = primary.Name()

	if name := strings.TrimSpace(cfg.TTSFallbackProvider); name != "" {
		fallback, err := registry.Resolve(name)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("tts fallback unavailable")
		} else if fallback.Name() != primary.Name() {
			setup.fallback = fallback
			setup.Fallback = fallback.Name()
			detail += " (fallback " + fallback.Name() + ")"
		}
	}
	setup.Detail = detail
	return setup
}
