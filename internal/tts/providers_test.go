package tts

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderWritesAudio(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "llm_1.mp3")

	require.NoError(t, p.Synthesize(context.Background(), "Bonjour !", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))
	assert.Equal(t, "gpt-4o-mini-tts", got["model"])
	assert.Equal(t, "coral", got["voice"])
	assert.Equal(t, "Bonjour !", got["input"])
}

func TestOpenAIProviderCapsLongInput(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	long := strings.Repeat("Une phrase courte. ", 400)
	require.NoError(t, p.Synthesize(context.Background(), long, filepath.Join(t.TempDir(), "a.mp3")))
	input, _ := got["input"].(string)
	assert.LessOrEqual(t, len([]rune(input)), openAIMaxChars)
	assert.True(t, strings.HasSuffix(input, "."))
}

func TestOpenAIProviderClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", status)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.mp3")

	err = p.Synthesize(context.Background(), "Bonjour", out)
	assert.Equal(t, FailureTransient, Classify(err))

	status = http.StatusUnauthorized
	err = p.Synthesize(context.Background(), "Bonjour", out)
	assert.Equal(t, FailurePermanent, Classify(err))
	assert.NoFileExists(t, out)
}

func TestOpenAIProviderKeepsErrorBodyValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 298) + "€" + "tail"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	err = p.Synthesize(context.Background(), "Bonjour", filepath.Join(t.TempDir(), "a.mp3"))
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, strings.Repeat("a", 298), f.Err.Error())
	assert.True(t, utf8.ValidString(f.Error()))
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}, nil)
	assert.Error(t, err)
}

func TestMinimaxProviderHandlesHexEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/t2a_v2", r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "fr", body["lang"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"audio":"` + hex.EncodeToString([]byte("mp3bytes")) + `"},"base_resp":{"status_code":0}}`))
	}))
	defer srv.Close()

	p, err := NewMinimaxProvider(MinimaxConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, p.Synthesize(context.Background(), "Salut", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp3bytes", string(data))
}

func TestMinimaxProviderRawAudioAndErrors(t *testing.T) {
	mode := "raw"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode {
		case "raw":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("rawmp3"))
		case "status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"base_resp":{"status_code":1004,"status_msg":"auth failed"}}`))
		case "empty":
			w.Header().Set("Content-Type", "audio/mpeg")
		}
	}))
	defer srv.Close()

	p, err := NewMinimaxProvider(MinimaxConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.mp3")

	require.NoError(t, p.Synthesize(context.Background(), "Salut", out))

	mode = "status"
	assert.Equal(t, FailurePermanent, Classify(p.Synthesize(context.Background(), "Salut", out)))

	mode = "empty"
	assert.Equal(t, FailureEmptyOutput, Classify(p.Synthesize(context.Background(), "Salut", out)))
}

func TestGoogleProviderSynthesizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/text:synthesize"), r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		voice, _ := body["voice"].(map[string]any)
		assert.Equal(t, "fr-FR-Wavenet-A", voice["name"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"audioContent":"` + base64.StdEncoding.EncodeToString([]byte("google-mp3")) + `"}`))
	}))
	defer srv.Close()

	p, err := NewGoogleProvider(context.Background(), GoogleConfig{Endpoint: srv.URL + "/"}, srv.Client())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, p.Synthesize(context.Background(), "Bonjour", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "google-mp3", string(data))
}

func TestGoogleProviderClassifiesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
	}))
	defer srv.Close()

	p, err := NewGoogleProvider(context.Background(), GoogleConfig{Endpoint: srv.URL + "/"}, srv.Client())
	require.NoError(t, err)
	err = p.Synthesize(context.Background(), "Bonjour", filepath.Join(t.TempDir(), "a.mp3"))
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FailureTransient, f.Kind)
	assert.Equal(t, 429, f.Status)
}

func TestGoogleProviderRequiresCredentials(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), GoogleConfig{}, nil)
	assert.Error(t, err)
}

func TestElevenLabsProviderCollectsChunks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Contains(t, r.URL.Path, "/v1/text-to-speech/voice-1/stream-input")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var texts []string
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			if text == "" {
				break
			}
			texts = append(texts, text)
		}
		assert.Equal(t, "Bonjour ", texts[len(texts)-1])
		for _, chunk := range []string{"part1-", "part2"} {
			_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte(chunk))})
		}
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	p, err := NewElevenLabsProvider(ElevenLabsConfig{
		APIKey:    "xi-key",
		VoiceID:   "voice-1",
		WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, p.Synthesize(context.Background(), "Bonjour", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(data))
}

func TestElevenLabsProviderReportsErrors(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"message_type": "rate_limited", "error": "slow down"})
	}))
	defer srv.Close()

	p, err := NewElevenLabsProvider(ElevenLabsConfig{
		APIKey:    "k",
		VoiceID:   "v",
		WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)
	err = p.Synthesize(context.Background(), "Bonjour", filepath.Join(t.TempDir(), "a.mp3"))
	assert.Equal(t, FailureTransient, Classify(err))
}

func TestCommandProviderRunsTemplate(t *testing.T) {
	if _, err := exec.LookPath("tee"); err != nil {
		t.Skip("tee not available")
	}
	p, err := NewCommandProvider("tee {output}", "wav", 0)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, p.Synthesize(context.Background(), "Bonjour", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", string(data))
}

func TestCommandProviderValidatesTemplate(t *testing.T) {
	_, err := NewCommandProvider("", "wav", 0)
	assert.Error(t, err)
	_, err = NewCommandProvider("tee out.wav", "wav", 0)
	assert.ErrorContains(t, err, "{output}")
}
