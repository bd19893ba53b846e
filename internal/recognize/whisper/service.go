package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"bilisub/internal/config"
	"bilisub/internal/fileutil"
	"bilisub/internal/logging"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
	"bilisub/internal/workflow"
)

const (
	defaultBinary    = "whisper"
	defaultModel     = "small"
	defaultThreshold = 0.5
	inputName        = "audio.m4a"
)

// Config captures the recognizer settings.
type Config struct {
	Binary string
	// Model and Language apply when a call does not name its own.
	Model             string
	Language          string
	NoSpeechThreshold float64
	TempDir           string
}

// ConfigFrom maps the recognition section.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Binary:            cfg.Recognition.Binary,
		Model:             cfg.Recognition.Model,
		Language:          cfg.Recognition.Language,
		NoSpeechThreshold: cfg.Recognition.NoSpeechThreshold,
		TempDir:           cfg.Paths.TempDir,
	}
}

// Service runs whisper.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a recognizer.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.NoSpeechThreshold <= 0 || cfg.NoSpeechThreshold > 1 {
		cfg.NoSpeechThreshold = defaultThreshold
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Service{cfg: cfg, logger: logging.NewComponentLogger(logger, "whisper")}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Transcribe recognizes speech in audio. languageHint and model fall back to
// the configured defaults when empty.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, languageHint, model string) ([]synth.Cue, error) {
	if err := os.MkdirAll(s.cfg.TempDir, 0o755); err != nil {
		return nil, services.Classify(services.KindInternal, "transcribe", err)
	}
	workDir, err := os.MkdirTemp(s.cfg.TempDir, "whisper-*")
	if err != nil {
		return nil, services.Classify(services.KindInternal, "transcribe", err)
	}
	defer os.RemoveAll(workDir)

	source := filepath.Join(workDir, inputName)
	size, err := fileutil.CopyToFile(audio, source, 0o644)
	if err != nil {
		return nil, services.Classify(services.KindInternal, "transcribe", fmt.Errorf("write audio: %w", err))
	}
	if size == 0 {
		return nil, services.Classify(services.KindRecognitionFailure, "transcribe", errors.New("empty audio stream"))
	}

	if strings.TrimSpace(model) == "" {
		model = s.cfg.Model
	}
	if strings.TrimSpace(languageHint) == "" {
		languageHint = s.cfg.Language
	}
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()
	if err := s.run(ctx, s.cfg.Binary, s.buildArgs(source, workDir, languageHint, model)...); err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, services.Classify(services.KindRecognitionFailure, "whisper", err)
	}

	jsonPath := filepath.Join(workDir, strings.TrimSuffix(inputName, filepath.Ext(inputName))+".json")
	cues, dropped, err := loadCues(jsonPath, s.cfg.NoSpeechThreshold)
	if err != nil {
		return nil, services.Classify(services.KindRecognitionFailure, "whisper output", err)
	}
	logger.Info("whisper transcription finished",
		logging.String("model", model),
		logging.String("language", languageHint),
		logging.Int64("audio_bytes", size),
		logging.Int("segments", len(cues)),
		logging.Int("dropped_no_speech", dropped),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "whisper_complete"),
	)
	return cues, nil
}

// HealthCheck reports whether the whisper binary is on PATH.
func (s *Service) HealthCheck(context.Context) workflow.Health {
	const name = "whisper"
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return workflow.Unhealthy(name, fmt.Sprintf("%s not found: %v", s.cfg.Binary, err))
	}
	return workflow.Healthy(name)
}

func (s *Service) buildArgs(source, outputDir, language, model string) []string {
	args := []string{
		source,
		"--model", model,
		"--task", "transcribe",
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
		"--fp16", "False",
	}
	if language = strings.TrimSpace(language); language != "" && language != "auto" {
		args = append(args, "--language", language)
	}
	return args
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), 400))
	}
	return nil
}

type transcript struct {
	Segments []struct {
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// loadCues reads whisper's JSON output and filters non-speech segments.
func loadCues(path string, threshold float64) ([]synth.Cue, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var payload transcript
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	cues := make([]synth.Cue, 0, len(payload.Segments))
	dropped := 0
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		if seg.NoSpeechProb > threshold {
			dropped++
			continue
		}
		cues = append(cues, synth.Cue{
			Start:      seg.Start,
			End:        seg.End,
			Text:       text,
			Confidence: subtitle.Float(1 - seg.NoSpeechProb),
		})
	}
	return cues, dropped, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
