package tts

import (
	"context"

	"github.com/ent0n29/parlons/internal/audio"
)

// DummyProvider writes a short silent WAV. Useful for local development.
type DummyProvider struct{}

func (DummyProvider) Name() string   { return "dummy" }
func (DummyProvider) Format() string { return "wav" }

func (d DummyProvider) Synthesize(_ context.Context, text, outputPath string) error {
	if err := requireText(d.Name(), text); err != nil {
		return err
	}
	if err := audio.WritePlaceholder(outputPath); err != nil {
		return permanent(d.Name(), err)
	}
	return nil
}
