package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/parlons/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
}

// ElevenLabsProvider streams text over the stream-input websocket and
// concatenates the returned MP3 chunks.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) (*ElevenLabsProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is required for elevenlabs tts")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, errors.New("ELEVENLABS_TTS_VOICE_ID is required for elevenlabs tts")
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	return &ElevenLabsProvider{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

func (p *ElevenLabsProvider) Name() string   { return "elevenlabs" }
func (p *ElevenLabsProvider) Format() string { return "mp3" }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, outputPath string) error {
	if err := requireText(p.Name(), text); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(p.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return permanent(p.Name(), err)
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return httpFailure(p.Name(), resp.StatusCode, err.Error())
		}
		return transient(p.Name(), fmt.Errorf("dial tts websocket: %w", err))
	}
	defer conn.Close()

	// Unblock reads when the context ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	messages := []map[string]any{
		{"text": " ", "voice_settings": map[string]any{"stability": 0.5, "similarity_boost": 0.8, "speed": 1.0}},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return transient(p.Name(), fmt.Errorf("write tts websocket: %w", err))
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return transient(p.Name(), ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				break
			}
			return transient(p.Name(), fmt.Errorf("read tts websocket: %w", err))
		}

		var msg struct {
			Audio       string `json:"audio"`
			IsFinal     bool   `json:"isFinal"`
			Error       string `json:"error"`
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			kind := FailurePermanent
			if reliability.TransientStreamError(msg.MessageType) {
				kind = FailureTransient
			}
			return &Failure{Provider: p.Name(), Kind: kind, Err: fmt.Errorf("%s: %s", msg.MessageType, msg.Error)}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return permanent(p.Name(), fmt.Errorf("decode audio chunk: %w", err))
			}
			audio = append(audio, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}

	return writeAudioFile(p.Name(), outputPath, audio)
}
