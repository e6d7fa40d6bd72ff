package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ent0n29/parlons/internal/reliability"
)

// Provider turns text into an audio file at outputPath. Errors returned by
// Synthesize are *Failure values.
type Provider interface {
	Name() string
	// Format is the file extension of the produced audio, without a dot.
	Format() string
	Synthesize(ctx context.Context, text, outputPath string) error
}

type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailurePermanent   FailureKind = "permanent"
	FailureEmptyOutput FailureKind = "empty_output"
)

// Failure is the classified error every adapter reports.
type Failure struct {
	Provider string
	Kind     FailureKind
	Status   int
	Err      error
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("tts %s %s (status %d): %v", f.Provider, f.Kind, f.Status, f.Err)
	}
	return fmt.Sprintf("tts %s %s: %v", f.Provider, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether another attempt with the same provider may help.
func (f *Failure) Retryable() bool {
	return f.Kind != FailurePermanent
}

func transient(provider string, err error) *Failure {
	return &Failure{Provider: provider, Kind: FailureTransient, Err: err}
}

func permanent(provider string, err error) *Failure {
	return &Failure{Provider: provider, Kind: FailurePermanent, Err: err}
}

// httpFailure classifies a non-2xx provider response.
func httpFailure(provider string, status int, body string) *Failure {
	kind := FailurePermanent
	if reliability.TransientStatus(status) {
		kind = FailureTransient
	}
	return &Failure{Provider: provider, Kind: kind, Status: status, Err: errors.New(reliability.Snippet(body, 300))}
}

// Classify maps any error to a failure kind. Errors that are not *Failure are
// treated as transient unless the context was cancelled.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.Canceled) {
		return FailurePermanent
	}
	return FailureTransient
}

var errEmptyText = errors.New("text is empty")

func requireText(provider, text string) error {
	if strings.TrimSpace(text) == "" {
		return permanent(provider, errEmptyText)
	}
	return nil
}

// writeAudioFile stores audio at path, refusing empty payloads.
func writeAudioFile(provider, path string, audio []byte) error {
	if len(audio) == 0 {
		return &Failure{Provider: provider, Kind: FailureEmptyOutput, Err: errors.New("provider returned no audio")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return permanent(provider, fmt.Errorf("create output dir: %w", err))
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return permanent(provider, fmt.Errorf("write audio: %w", err))
	}
	return nil
}

// checkOutput verifies a provider that writes the file itself left a
// non-empty result.
func checkOutput(provider, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return &Failure{Provider: provider, Kind: FailureEmptyOutput, Err: fmt.Errorf("no audio written to %s", filepath.Base(path))}
	}
	return nil
}
