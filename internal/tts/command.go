package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const outputPlaceholder = "{output}"

// CommandProvider runs a local synthesis engine. The command template must
// contain {output}; the text is written to stdin.
type CommandProvider struct {
	argv    []string
	format  string
	timeout time.Duration
}

func NewCommandProvider(command, format string, timeout time.Duration) (*CommandProvider, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("LOCAL_TTS_COMMAND is required for command tts")
	}
	if !strings.Contains(command, outputPlaceholder) {
		return nil, fmt.Errorf("LOCAL_TTS_COMMAND must contain %s", outputPlaceholder)
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("tts command not found: %w", err)
	}
	if format == "" {
		format = "wav"
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &CommandProvider{argv: argv, format: strings.TrimPrefix(format, "."), timeout: timeout}, nil
}

func (p *CommandProvider) Name() string   { return "command" }
func (p *CommandProvider) Format() string { return p.format }

func (p *CommandProvider) Synthesize(ctx context.Context, text, outputPath string) error {
	if err := requireText(p.Name(), text); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := make([]string, len(p.argv)-1)
	for i, a := range p.argv[1:] {
		args[i] = strings.ReplaceAll(a, outputPlaceholder, outputPath)
	}
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if ctx.Err() != nil {
			return transient(p.Name(), fmt.Errorf("command timed out: %w", ctx.Err()))
		}
		return permanent(p.Name(), fmt.Errorf("command failed: %w: %s", err, detail))
	}
	return checkOutput(p.Name(), outputPath)
}
