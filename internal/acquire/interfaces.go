package acquire

import (
	"context"
	"io"

	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
)

// Track is one subtitle track listed by the platform.
type Track struct {
	Language      string
	AutoGenerated bool
	Cues          []synth.Cue
}

// Platform is the remote video platform. Implementations classify failures
// with services kinds (auth_rejected, not_found, rate_limited,
// transient_network) so the gate can decide what to retry.
type Platform interface {
	Resolve(ctx context.Context, input string) (subtitle.VideoRef, error)
	ListSubtitles(ctx context.Context, ref subtitle.VideoRef, cred *Credential) ([]Track, error)
	FetchAudio(ctx context.Context, ref subtitle.VideoRef, cred *Credential) (io.ReadCloser, error)
}

// Recognizer is the speech-recognition engine.
type Recognizer interface {
	Transcribe(ctx context.Context, audio io.Reader, languageHint, model string) ([]synth.Cue, error)
}

// Gate wraps every outward call. The runner's implementation paces calls per
// endpoint and retries retryable failures.
type Gate interface {
	Do(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error

// Do implements Gate.
func (f GateFunc) Do(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	return f(ctx, endpoint, fn)
}

// Direct calls fn once with no pacing or retry.
var Direct Gate = GateFunc(func(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
})

// Endpoint names passed to the gate.
const (
	EndpointResolve     = "platform.resolve"
	EndpointSubtitles   = "platform.subtitles"
	EndpointAudio       = "platform.audio"
	EndpointRecognition = "recognition"
)
