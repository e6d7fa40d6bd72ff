package stt

import (
	"context"
	"errors"
	"testing"
)

func TestPlaceholderReportsNotImplemented(t *testing.T) {
	var tr Transcriber = Placeholder{}
	text, err := tr.Transcribe(context.Background(), "/tmp/recording_1.webm")
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}
