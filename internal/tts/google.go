package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/ent0n29/parlons/internal/reliability"
)

type GoogleConfig struct {
	APIKey          string
	CredentialsFile string
	Voice           string
	LanguageCode    string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// GoogleProvider uses Cloud Text-to-Speech with a French Wavenet voice.
type GoogleProvider struct {
	cfg     GoogleConfig
	service *texttospeech.Service
}

func NewGoogleProvider(ctx context.Context, cfg GoogleConfig, client *http.Client) (*GoogleProvider, error) {
	if cfg.Voice == "" {
		cfg.Voice = "fr-FR-Wavenet-A"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "fr-FR"
	}

	var opts []option.ClientOption
	switch {
	case client != nil:
		opts = append(opts, option.WithHTTPClient(client))
	case strings.TrimSpace(cfg.APIKey) != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, errors.New("GOOGLE_TTS_API_KEY or GOOGLE_APPLICATION_CREDENTIALS is required for google tts")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech service: %w", err)
	}
	return &GoogleProvider{cfg: cfg, service: svc}, nil
}

func (p *GoogleProvider) Name() string   { return "google" }
func (p *GoogleProvider) Format() string { return "mp3" }

func (p *GoogleProvider) Synthesize(ctx context.Context, text, outputPath string) error {
	if err := requireText(p.Name(), text); err != nil {
		return err
	}
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: p.cfg.LanguageCode,
			Name:         p.cfg.Voice,
			SsmlGender:   "FEMALE",
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  1.0,
		},
	}

	resp, err := p.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return p.classify(err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return permanent(p.Name(), fmt.Errorf("decode audio content: %w", err))
	}
	return writeAudioFile(p.Name(), outputPath, audio)
}

func (p *GoogleProvider) classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		kind := FailurePermanent
		if reliability.TransientStatus(apiErr.Code) {
			kind = FailureTransient
		}
		return &Failure{Provider: p.Name(), Kind: kind, Status: apiErr.Code, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return permanent(p.Name(), err)
	}
	return transient(p.Name(), err)
}
