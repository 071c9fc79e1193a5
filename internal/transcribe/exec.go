package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/capturelabs/capture-core/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecTranscriber shells out to a local recognizer binary. The subprocess
// reads a WAV file and prints a JSON object with the transcript on stdout.
type ExecTranscriber struct {
	cmd []string
	cfg config.TranscriberConfig
	mu  sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

func NewExecTranscriber(cfg config.TranscriberConfig) (*ExecTranscriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &ExecTranscriber{cmd: args, cfg: cfg}, nil
}

func (t *ExecTranscriber) Transcribe(ctx context.Context, audioB64 string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wavBytes, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return Result{}, fmt.Errorf("decode audio payload: %w", err)
	}

	file, err := os.CreateTemp(os.TempDir(), "capture_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(wavBytes); err != nil {
		return Result{}, fmt.Errorf("write wav: %w", err)
	}
	if err := file.Sync(); err != nil {
		return Result{}, fmt.Errorf("flush wav: %w", err)
	}

	args := append([]string{}, t.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if t.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", t.cfg.ModelPath)
	}
	if t.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", t.cfg.Language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("transcriber command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode transcriber response: %w", err)
	}
	text, err := checkText(resp.Text)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}
