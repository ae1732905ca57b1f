package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ExecStrategy shells out to an external scoring process, typically a
// Python model. The feature set is passed as a single JSON argument and
// the last stdout line is expected to be {"price": N}.
type ExecStrategy struct {
	Command string   // e.g. "python3"
	Args    []string // e.g. ["pricing.py"]
	Dir     string
}

func NewExecStrategy(command string, args ...string) *ExecStrategy {
	return &ExecStrategy{Command: command, Args: args}
}

func (s *ExecStrategy) Price(ctx context.Context, f Features) (float64, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	args := append(append([]string{}, s.Args...), string(payload))
	cmd := exec.CommandContext(ctx, s.Command, args...)
	cmd.Dir = s.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return 0, fmt.Errorf("scorer: %s: %w", msg, err)
		}
		return 0, fmt.Errorf("scorer: %w", err)
	}

	// Model warmup chatter may precede the result; only the last line counts.
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last := lines[len(lines)-1]

	var out struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(last), &out); err != nil {
		return 0, fmt.Errorf("parse scorer output %q: %w", last, err)
	}
	return out.Price, nil
}
