package recog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/voxexam-labs/voxexam-core/internal/config"
)

type execRecognizer struct {
	cmd []string
	cfg config.RecognitionConfig
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// NewExecRecognizer shells out to an external STT command. When PCM is
// delivered it is wrapped in a WAV temp file and passed with --audio;
// otherwise the command captures from the default device itself.
func NewExecRecognizer(cfg config.RecognitionConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognition command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Recognize(ctx context.Context, _ string, pcm []byte, cfg Config) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := append([]string{}, r.cmd...)
	base := args[0]
	cmdArgs := args[1:]

	if pcm != nil {
		file, err := os.CreateTemp(os.TempDir(), "voxexam_stt_*.wav")
		if err != nil {
			return Transcript{}, fmt.Errorf("temp file: %w", err)
		}
		defer os.Remove(file.Name())
		defer file.Close()

		if err := writePCMToWav(file, pcm, r.cfg.SampleRate, r.cfg.Channels); err != nil {
			return Transcript{}, err
		}
		cmdArgs = append(cmdArgs, "--audio", file.Name())
	}
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	if cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", cfg.Language)
	}
	if cfg.MaxAlternatives > 1 {
		cmdArgs = append(cmdArgs, "--alternatives", strconv.Itoa(cfg.MaxAlternatives))
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, fmt.Errorf("recognition command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode recognition response: %w", err)
	}
	if resp.Error != "" {
		if kindErr := classify(resp.Error); kindErr != nil {
			return Transcript{}, kindErr
		}
		return Transcript{}, fmt.Errorf("recognition backend: %s", resp.Error)
	}
	if resp.Text == "" {
		return Transcript{}, ErrNoSpeech
	}
	return Transcript{Text: resp.Text, Confidence: resp.Confidence}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
