package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"bilisub/internal/language"
	"bilisub/internal/logging"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
)

// NoteNoSubtitles is recorded on items that finish without any segment.
const NoteNoSubtitles = "no subtitles available"

// Request describes one item's acquisition.
type Request struct {
	Input      string
	Credential *Credential
	// Languages are requested in priority order; the first is primary.
	Languages []string
	// Fallback enables speech recognition when no authored track exists.
	Fallback bool
	Model    string
	// LanguageHint overrides the recognition hint for the primary language.
	LanguageHint string
	// KeepAudio retains the fetched audio bytes in the outcome.
	KeepAudio bool
	// Progress, when set, receives a short message and a fraction in [0,1]
	// after each outward call completes.
	Progress func(message string, fraction float64)
}

// Outcome is what acquisition produced for one item.
type Outcome struct {
	Video           subtitle.VideoRef
	Tracks          []synth.Track
	NoSubtitles     bool
	UsedRecognition bool
	// Missing lists requested languages that produced no segments.
	Missing []string
	Audio   []byte
}

// Note summarizes the outcome for reports.
func (o Outcome) Note() string {
	switch {
	case o.NoSubtitles:
		return NoteNoSubtitles
	case len(o.Missing) > 0:
		return "missing languages: " + strings.Join(o.Missing, ", ")
	default:
		return ""
	}
}

// Strategy runs the authored-first, recognition-fallback decision.
type Strategy struct {
	platform   Platform
	recognizer Recognizer
	gate       Gate
	logger     *slog.Logger
}

// NewStrategy wires the collaborators. A nil recognizer disables fallback; a
// nil gate calls collaborators directly.
func NewStrategy(platform Platform, recognizer Recognizer, gate Gate, logger *slog.Logger) *Strategy {
	if gate == nil {
		gate = Direct
	}
	return &Strategy{
		platform:   platform,
		recognizer: recognizer,
		gate:       gate,
		logger:     logging.NewComponentLogger(logger, "acquire"),
	}
}

// Acquire resolves the input, lists authored tracks, and fills every
// requested language from the best source. The context is checked after
// each outward call so cancellation takes effect at the next checkpoint.
func (s *Strategy) Acquire(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	if s.platform == nil {
		return out, services.Wrap(services.ErrConfiguration, "acquire", "platform", "no platform configured", nil)
	}
	languages := language.NormalizeList(req.Languages)
	if len(languages) == 0 {
		return out, services.Classify(services.KindInvalidInput, "acquire", errors.New("no languages requested"))
	}
	logger := logging.WithContext(ctx, s.logger)
	progress := func(msg string, frac float64) {
		if req.Progress != nil {
			req.Progress(msg, frac)
		}
	}

	err := s.gate.Do(ctx, EndpointResolve, func(ctx context.Context) error {
		ref, err := s.platform.Resolve(ctx, req.Input)
		out.Video = ref
		return err
	})
	if err != nil {
		return out, fmt.Errorf("resolve %q: %w", req.Input, err)
	}
	if ctx.Err() != nil {
		return out, context.Cause(ctx)
	}
	progress("resolved "+out.Video.ID, 0.2)

	var listed []Track
	err = s.gate.Do(ctx, EndpointSubtitles, func(ctx context.Context) error {
		var err error
		listed, err = s.platform.ListSubtitles(ctx, out.Video, req.Credential)
		return err
	})
	if err != nil {
		return out, fmt.Errorf("list subtitles: %w", err)
	}
	if ctx.Err() != nil {
		return out, context.Cause(ctx)
	}
	progress(fmt.Sprintf("found %d subtitle tracks", len(listed)), 0.35)

	usable := make([]Track, 0, len(listed))
	for _, track := range listed {
		if len(track.Cues) > 0 {
			usable = append(usable, track)
		}
	}

	var audio []byte
	for i, lang := range languages {
		if idx := pickTrack(lang, usable); idx >= 0 {
			segments := synth.LabelAuthored(usable[idx].Cues, lang)
			logger.Debug("using authored track",
				logging.String("language", lang),
				logging.String("track", usable[idx].Language),
				logging.Int("cues", len(segments)),
			)
			out.Tracks = append(out.Tracks, synth.Track{Language: lang, Segments: segments})
			continue
		}
		if !req.Fallback || s.recognizer == nil {
			out.Missing = append(out.Missing, lang)
			continue
		}

		if audio == nil {
			audio, err = s.fetchAudio(ctx, out.Video, req.Credential)
			if err != nil {
				return out, err
			}
			if ctx.Err() != nil {
				return out, context.Cause(ctx)
			}
			progress("audio downloaded", 0.5)
		}

		hint := language.Base(lang)
		if i == 0 && strings.TrimSpace(req.LanguageHint) != "" {
			hint = strings.TrimSpace(req.LanguageHint)
		}
		var cues []synth.Cue
		err = s.gate.Do(ctx, EndpointRecognition, func(ctx context.Context) error {
			var err error
			cues, err = s.recognizer.Transcribe(ctx, bytes.NewReader(audio), hint, req.Model)
			return recognitionError(err)
		})
		if err != nil {
			return out, fmt.Errorf("recognize %s: %w", lang, err)
		}
		if ctx.Err() != nil {
			return out, context.Cause(ctx)
		}
		out.UsedRecognition = true
		segments := synth.LabelRecognized(cues, lang)
		logger.Info("speech recognition complete",
			logging.String("language", lang),
			logging.Int("segments", len(segments)),
			logging.String(logging.FieldEventType, "recognition_complete"),
		)
		if len(segments) == 0 {
			out.Missing = append(out.Missing, lang)
		}
		out.Tracks = append(out.Tracks, synth.Track{Language: lang, Segments: segments})
		progress("recognized "+lang, 0.5+0.5*float64(i+1)/float64(len(languages)))
	}

	out.NoSubtitles = true
	for _, track := range out.Tracks {
		if len(track.Segments) > 0 {
			out.NoSubtitles = false
			break
		}
	}
	if req.KeepAudio {
		out.Audio = audio
	}
	progress("acquisition complete", 1)
	return out, nil
}

// pickTrack prefers human-authored tracks over platform machine tracks, and
// an exact tag over a matcher hit.
func pickTrack(lang string, tracks []Track) int {
	for _, auto := range []bool{false, true} {
		var codes []string
		var index []int
		for i, track := range tracks {
			if (track.AutoGenerated || language.IsAutoGenerated(track.Language)) != auto {
				continue
			}
			if language.Normalize(track.Language) == lang {
				return i
			}
			codes = append(codes, track.Language)
			index = append(index, i)
		}
		if best := language.Best(lang, codes); best >= 0 {
			return index[best]
		}
	}
	return -1
}

func (s *Strategy) fetchAudio(ctx context.Context, ref subtitle.VideoRef, cred *Credential) ([]byte, error) {
	var audio []byte
	err := s.gate.Do(ctx, EndpointAudio, func(ctx context.Context) error {
		body, err := s.platform.FetchAudio(ctx, ref, cred)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return services.Classify(services.KindTransientNetwork, "read audio", err)
		}
		audio = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	return audio, nil
}

// recognitionError tags unclassified recognizer failures so they count
// against the retry budget and surface as recognition_failure.
func recognitionError(err error) error {
	if err == nil {
		return nil
	}
	var ke *services.KindError
	if errors.As(err, &ke) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Classify(services.KindRecognitionFailure, "transcribe", err)
}
