package tts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type MinimaxConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	Timeout time.Duration
}

// MinimaxProvider calls the t2a_v2 endpoint with a French voice.
type MinimaxProvider struct {
	cfg    MinimaxConfig
	client *http.Client
}

func NewMinimaxProvider(cfg MinimaxConfig, client *http.Client) (*MinimaxProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("MINIMAX_API_KEY is required for minimax tts")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.minimaxi.chat"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "female-001"
	}
	return &MinimaxProvider{cfg: cfg, client: newHTTPClient(client, cfg.Timeout)}, nil
}

func (p *MinimaxProvider) Name() string   { return "minimax" }
func (p *MinimaxProvider) Format() string { return "mp3" }

type minimaxResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (p *MinimaxProvider) Synthesize(ctx context.Context, text, outputPath string) error {
	if err := requireText(p.Name(), text); err != nil {
		return err
	}
	payload := map[string]any{
		"text":              text,
		"lang":              "fr",
		"voice_id":          p.cfg.VoiceID,
		"emotion":           "neutral",
		"speed":             1.0,
		"vol":               50,
		"pitch":             0,
		"audio_sample_rate": 22050,
		"bitrate":           128000,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}

	data, contentType, err := postJSON(ctx, p.client, p.Name(), strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/t2a_v2", headers, payload)
	if err != nil {
		return err
	}

	// The endpoint answers either raw audio or a JSON envelope with hex audio.
	if !strings.Contains(contentType, "json") {
		return writeAudioFile(p.Name(), outputPath, data)
	}
	var resp minimaxResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return permanent(p.Name(), fmt.Errorf("decode response: %w", err))
	}
	if resp.BaseResp.StatusCode != 0 {
		return permanent(p.Name(), fmt.Errorf("minimax status %d: %s", resp.BaseResp.StatusCode, resp.BaseResp.StatusMsg))
	}
	audio, err := hex.DecodeString(resp.Data.Audio)
	if err != nil {
		return permanent(p.Name(), fmt.Errorf("decode audio: %w", err))
	}
	return writeAudioFile(p.Name(), outputPath, audio)
}
