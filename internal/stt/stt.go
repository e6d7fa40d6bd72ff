package stt

import (
	"context"
	"errors"
)

var ErrNotImplemented = errors.New("transcription is not available")

// Transcriber turns a stored recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Placeholder accepts recordings but never transcribes them.
type Placeholder struct{}

func (Placeholder) Transcribe(context.Context, string) (string, error) {
	return "", ErrNotImplemented
}
