package summary

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// ErrEmptySummary is returned when the command succeeds without output.
var ErrEmptySummary = errors.New("summarizer produced no output")

// Compile-time interface satisfaction check.
var _ driven.Summarizer = (*Command)(nil)

// Command summarizes by piping a prompt to an external program on stdin and
// reading the summary from stdout. Output in the stream-json line format of
// common LLM CLIs is unwrapped to its final result.
type Command struct {
	argv    []string
	bullets int
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand creates a Command running argv. A zero timeout leaves the call
// bounded only by the caller's context.
func NewCommand(argv []string, bullets int, timeout time.Duration, logger *slog.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("summarizer command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{
		argv:    argv,
		bullets: bullets,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Summarize implements driven.Summarizer.
func (c *Command) Summarize(ctx context.Context, req model.SummaryRequest) (string, error) {
	prompt, err := BuildPrompt(req, c.bullets)
	if err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	c.logger.Debug("summarizer command finished",
		"command", c.argv[0],
		"prompt_bytes", len(prompt),
		"stdout_bytes", stdout.Len(),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("running %s: %w", c.argv[0], ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", c.argv[0], runErr, firstLine(msg))
		}
		return "", fmt.Errorf("running %s: %w", c.argv[0], runErr)
	}

	summary := parseOutput(stdout.String())
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

// streamEvent is the subset of a stream-json line that carries text.
type streamEvent struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// parseOutput returns the final result of stream-json output, the joined
// assistant text when no result line exists, or the trimmed raw output when
// it is not stream-json at all.
func parseOutput(raw string) string {
	var (
		texts     []string
		sawStream bool
	)

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
			return strings.TrimSpace(raw)
		}
		sawStream = true

		switch ev.Type {
		case "result":
			if ev.Result != "" {
				return strings.TrimSpace(ev.Result)
			}
		case "assistant":
			for _, part := range ev.Message.Content {
				if part.Type == "text" && part.Text != "" {
					texts = append(texts, part.Text)
				}
			}
		}
	}

	if !sawStream {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
