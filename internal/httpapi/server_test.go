package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/parlons/internal/config"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/observability"
	"github.com/ent0n29/parlons/internal/tutor"
	"github.com/ent0n29/parlons/internal/workspace"
)

type stubTutor struct {
	lastUser     string
	lastScenario string
	lastText     string
	forceReset   *bool
	resetCalls   int
	uploaded     []byte
	storeErr     error
	inputErr     error
}

func (s *stubTutor) HandleTurn(_ context.Context, userID, scenario, text string) (tutor.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return tutor.Result{}, &tutor.InputError{Field: "userId", Err: tutor.ErrMissingUserID}
	}
	if strings.TrimSpace(text) == "" {
		return tutor.Result{}, &tutor.InputError{Field: "message", Err: tutor.ErrEmptyMessage}
	}
	if s.storeErr != nil {
		return tutor.Result{}, s.storeErr
	}
	s.lastUser, s.lastScenario, s.lastText = userID, scenario, text
	url := "/temp_audio/user_" + userID + "/llm_1.wav"
	return tutor.Result{Reply: "Très bien !", AudioURL: &url}, nil
}

func (s *stubTutor) StartScenario(_ context.Context, userID, scenario string, forceReset bool) (tutor.Result, error) {
	if userID == "" {
		return tutor.Result{}, &tutor.InputError{Field: "userId", Err: tutor.ErrMissingUserID}
	}
	s.lastUser, s.lastScenario = userID, scenario
	s.forceReset = &forceReset
	if !forceReset {
		return tutor.Result{Reply: tutor.DefaultGreeting}, nil
	}
	return tutor.Result{Reply: "Bienvenue au restaurant."}, nil
}

func (s *stubTutor) Reset(_ context.Context, userID string) error {
	if userID == "" {
		return &tutor.InputError{Field: "userId", Err: tutor.ErrMissingUserID}
	}
	s.resetCalls++
	return nil
}

func (s *stubTutor) DeleteRecentAudio(_ context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, &tutor.InputError{Field: "userId", Err: tutor.ErrMissingUserID}
	}
	if s.inputErr != nil {
		return nil, s.inputErr
	}
	return nil, nil
}

func (s *stubTutor) SaveRecording(_ context.Context, userID, filename string, body io.Reader) (tutor.Recording, error) {
	if userID == "" {
		return tutor.Recording{}, &tutor.InputError{Field: "user_id", Err: tutor.ErrMissingUserID}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return tutor.Recording{}, err
	}
	s.uploaded = data
	return tutor.Recording{UserID: userID, URL: "/temp_audio/user_" + userID + "/recording_1" + filepath.Ext(filename)}, nil
}

func (s *stubTutor) ActiveSessions(context.Context) (int, error) {
	if s.storeErr != nil {
		return 0, s.storeErr
	}
	return 3, nil
}

func (s *stubTutor) SpeechProvider() string { return "dummy" }
func (s *stubTutor) LLMProvider() string    { return "mock" }

func newTestServer(t *testing.T, tut *stubTutor) (*httptest.Server, *workspace.Manager) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "/temp_audio", logging.Nop())
	require.NoError(t, err)
	cfg := config.Config{AudioURLPrefix: "/temp_audio"}
	srv := New(cfg, tut, ws, observability.NewMetrics("test_httpapi"), logging.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, ws
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func TestRespond(t *testing.T) {
	tut := &stubTutor{}
	ts, _ := newTestServer(t, tut)

	res, out := postJSON(t, ts.URL+"/api/respond", map[string]string{
		"message": "Je voudrais un café", "userId": "u1", "scenario": "restaurant",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Très bien !", out["response"])
	assert.Equal(t, "/temp_audio/user_u1/llm_1.wav", out["audio_url"])
	assert.Equal(t, "restaurant", tut.lastScenario)
}

func TestRespondMissingFields(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{})

	res, out := postJSON(t, ts.URL+"/api/respond", map[string]string{"message": "Bonjour"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "missing_userid", out["code"])

	res, out = postJSON(t, ts.URL+"/api/respond", map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "missing_message", out["code"])
}

func TestRespondMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{})
	res, err := http.Post(ts.URL+"/api/respond", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRespondStoreFailure(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{storeErr: errors.New("redis down")})
	res, out := postJSON(t, ts.URL+"/api/respond", map[string]string{"message": "Salut", "userId": "u1"})
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "unavailable", out["code"])
}

func TestStartConversationForceResetDefaultsTrue(t *testing.T) {
	tut := &stubTutor{}
	ts, _ := newTestServer(t, tut)

	res, out := postJSON(t, ts.URL+"/api/start_conversation", map[string]any{"userId": "u1", "scenario": "restaurant"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, tut.forceReset)
	assert.True(t, *tut.forceReset)
	assert.Equal(t, "Bienvenue au restaurant.", out["response"])

	res, out = postJSON(t, ts.URL+"/api/start_conversation", map[string]any{"userId": "u1", "force_reset": false})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, *tut.forceReset)
	assert.Equal(t, tutor.DefaultGreeting, out["response"])
	assert.Contains(t, out, "audio_url")
	assert.Nil(t, out["audio_url"])
}

func TestResetSessionAndDeleteAudio(t *testing.T) {
	tut := &stubTutor{}
	ts, _ := newTestServer(t, tut)

	res, out := postJSON(t, ts.URL+"/api/reset_session", map[string]string{"userId": "u1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Session reset", out["status"])
	assert.Equal(t, 1, tut.resetCalls)

	res, out = postJSON(t, ts.URL+"/api/delete-audio", map[string]string{"userId": "u1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []any{}, out["deleted"])

	res, _ = postJSON(t, ts.URL+"/api/reset_session", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestTranscribeUpload(t *testing.T) {
	tut := &stubTutor{}
	ts, _ := newTestServer(t, tut)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user_id", "u1"))
	part, err := mw.CreateFormFile("audio", "clip.ogg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("OggS-data"))
	require.NoError(t, mw.Close())

	res, err := http.Post(ts.URL+"/api/transcribe", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, "/temp_audio/user_u1/recording_1.ogg", out["audio_path"])
	assert.Equal(t, "OggS-data", string(tut.uploaded))
}

func TestTranscribeWithoutFile(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user_id", "u1"))
	require.NoError(t, mw.Close())

	res, err := http.Post(ts.URL+"/api/transcribe", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServeAudio(t *testing.T) {
	ts, ws := newTestServer(t, &stubTutor{})

	path, err := ws.UserPath("u1", "llm_1.wav")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	res, err := http.Get(ts.URL + "/temp_audio/user_u1/llm_1.wav")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "RIFF", string(body))

	res, err = http.Get(ts.URL + "/temp_audio/user_u1/missing.wav")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Get(ts.URL + "/temp_audio/user_u1/")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServeAudioForEscapedUserDir(t *testing.T) {
	ts, ws := newTestServer(t, &stubTutor{})

	path, err := ws.UserPath("jean dupont", "llm_1.wav")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	public, err := ws.PublicURL(path)
	require.NoError(t, err)

	res, err := http.Get(ts.URL + public)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "RIFF", string(body))
}

func TestInvalidUserIDIsBadRequest(t *testing.T) {
	tut := &stubTutor{inputErr: &tutor.InputError{Field: "userId", Err: workspace.ErrInvalidUserID}}
	ts, _ := newTestServer(t, tut)

	res, out := postJSON(t, ts.URL+"/api/delete-audio", map[string]string{"userId": "x"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_userid", out["code"])
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{})

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	res.Body.Close()
	assert.Equal(t, "healthy", out["status"])
	assert.EqualValues(t, 3, out["active_sessions"])
	assert.Equal(t, "dummy", out["tts_provider"])
	assert.Equal(t, "mock", out["llm_provider"])

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/debug/stages"} {
		res, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
	}
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	ts, _ := newTestServer(t, &stubTutor{storeErr: errors.New("down")})
	res, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestCORSWhenAllowed(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "/temp_audio", logging.Nop())
	require.NoError(t, err)
	srv := New(config.Config{AllowAnyOrigin: true}, &stubTutor{}, ws, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/respond", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticDirFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>parlons</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	srv := New(config.Config{StaticDir: dir}, &stubTutor{}, nil, nil, nil)

	for path, want := range map[string]string{
		"/app.js":         "console.log(1)",
		"/conversation/3": "<html>parlons</html>",
	} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}
}
