package tts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/parlons/internal/audio"
	"github.com/ent0n29/parlons/internal/logging"
	"github.com/ent0n29/parlons/internal/observability"
	"github.com/ent0n29/parlons/internal/reliability"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
)

// Outcome is the only result a caller sees. Retries stay internal.
type Outcome struct {
	Status Status
	// Path is the file actually written. Its extension follows the provider
	// that wrote it, so it can differ from the requested path.
	Path     string
	Provider string
	Attempts int
	Err      error
}

func (o Outcome) OK() bool { return o.Status == StatusSuccess }

type PipelineConfig struct {
	// MaxAttempts bounds calls to the primary provider.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	return c
}

// Pipeline retries the primary provider, tries the fallback once, and writes
// a placeholder when both give up so the output path always exists.
type Pipeline struct {
	primary  Provider
	fallback Provider
	cfg      PipelineConfig
	log      *logging.Logger
	metrics  *observability.Metrics

	sleep       func(ctx context.Context, d time.Duration) error
	placeholder func(path string) error
}

func NewPipeline(primary, fallback Provider, cfg PipelineConfig, log *logging.Logger, metrics *observability.Metrics) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	if fallback != nil && primary != nil && fallback.Name() == primary.Name() {
		fallback = nil
	}
	return &Pipeline{
		primary:     primary,
		fallback:    fallback,
		cfg:         cfg.withDefaults(),
		log:         log,
		metrics:     metrics,
		sleep:       sleepContext,
		placeholder: audio.WritePlaceholder,
	}
}

// ProviderName reports the primary provider.
func (p *Pipeline) ProviderName() string {
	if p.primary == nil {
		return "none"
	}
	return p.primary.Name()
}

// Format is the extension callers should give output paths.
func (p *Pipeline) Format() string {
	if p.primary == nil {
		return "wav"
	}
	return p.primary.Format()
}

func (p *Pipeline) Synthesize(ctx context.Context, text, outputPath string) Outcome {
	started := time.Now()
	defer func() { p.metrics.ObserveStage(observability.StageTTS, time.Since(started)) }()

	var (
		lastErr  error
		attempts int
	)

	if p.primary != nil {
		for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
			attempts++
			err := p.attempt(ctx, p.primary, text, outputPath)
			if err == nil {
				return p.success(p.primary, outputPath, attempts)
			}
			lastErr = err
			p.log.Warn().
				Err(err).
				Str("provider", p.primary.Name()).
				Int("attempt", attempt).
				Int("max_attempts", p.cfg.MaxAttempts).
				Msg("tts attempt failed")

			if Classify(err) == FailurePermanent || attempt == p.cfg.MaxAttempts {
				break
			}
			delay := reliability.RetryDelay(attempt-1, p.cfg.Backoff, p.cfg.MaxBackoff)
			if err := p.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	} else {
		lastErr = errors.New("no tts provider configured")
	}

	if p.fallback != nil && ctx.Err() == nil {
		attempts++
		fallbackPath := p.retarget(outputPath, p.fallback.Format())
		err := p.attempt(ctx, p.fallback, text, fallbackPath)
		if err == nil {
			p.log.Info().
				Str("provider", p.fallback.Name()).
				Str("primary", p.ProviderName()).
				Msg("tts fallback provider succeeded")
			return p.success(p.fallback, fallbackPath, attempts)
		}
		p.log.Warn().Err(err).Str("provider", p.fallback.Name()).Msg("tts fallback attempt failed")
		lastErr = fmt.Errorf("%w; fallback: %v", lastErr, err)
		outputPath = fallbackPath
	}

	return p.degraded(p.retarget(outputPath, audio.PlaceholderFormat), attempts, lastErr)
}

// retarget swaps the extension of path for format so the file name matches
// what the writing provider produces. A leftover partial file at the old
// path is removed.
func (p *Pipeline) retarget(path, format string) string {
	format = strings.TrimPrefix(strings.TrimSpace(format), ".")
	if format == "" {
		return path
	}
	next := strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
	if next != path {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn().Err(err).Str("path", path).Msg("remove partial audio failed")
		}
	}
	return next
}

func (p *Pipeline) attempt(ctx context.Context, provider Provider, text, outputPath string) error {
	err := provider.Synthesize(ctx, text, outputPath)
	if err == nil {
		err = checkOutput(provider.Name(), outputPath)
	}
	result := "ok"
	if err != nil {
		result = string(Classify(err))
	}
	p.metrics.IncTTSAttempt(provider.Name(), result)
	return err
}

func (p *Pipeline) success(provider Provider, path string, attempts int) Outcome {
	p.metrics.IncTTSOutcome(provider.Name(), string(StatusSuccess))
	return Outcome{Status: StatusSuccess, Path: path, Provider: provider.Name(), Attempts: attempts}
}

func (p *Pipeline) degraded(path string, attempts int, cause error) Outcome {
	if err := p.placeholder(path); err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("write placeholder audio failed")
	}
	p.log.Error().
		Err(cause).
		Str("provider", p.ProviderName()).
		Int("attempts", attempts).
		Msg("tts degraded; serving text-only reply")
	p.metrics.IncTTSOutcome(p.ProviderName(), string(StatusDegraded))
	return Outcome{Status: StatusDegraded, Path: path, Provider: p.ProviderName(), Attempts: attempts, Err: cause}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
