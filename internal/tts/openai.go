package tts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const openAIMaxChars = 4096

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// OpenAIProvider calls the audio speech endpoint and stores MP3 output.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig, client *http.Client) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is required for openai tts")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "coral"
	}
	return &OpenAIProvider{cfg: cfg, client: newHTTPClient(client, cfg.Timeout)}, nil
}

func (p *OpenAIProvider) Name() string   { return "openai" }
func (p *OpenAIProvider) Format() string { return "mp3" }

func (p *OpenAIProvider) Synthesize(ctx context.Context, text, outputPath string) error {
	if err := requireText(p.Name(), text); err != nil {
		return err
	}
	if len([]rune(text)) > openAIMaxChars {
		text = capAtSentence(text, openAIMaxChars)
	}

	payload := map[string]any{
		"model":           p.cfg.Model,
		"voice":           p.cfg.Voice,
		"input":           text,
		"response_format": "mp3",
	}
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}

	data, _, err := postJSON(ctx, p.client, p.Name(), strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/speech", headers, payload)
	if err != nil {
		return err
	}
	return writeAudioFile(p.Name(), outputPath, data)
}
