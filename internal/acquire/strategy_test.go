package acquire

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
)

type fakePlatform struct {
	tracks      []Track
	listErr     error
	audioCalls  atomic.Int32
	seenCookies []string
}

func (f *fakePlatform) Resolve(_ context.Context, input string) (subtitle.VideoRef, error) {
	return subtitle.VideoRef{ID: input, Title: "Demo", Duration: time.Minute}, nil
}

func (f *fakePlatform) ListSubtitles(_ context.Context, _ subtitle.VideoRef, cred *Credential) ([]Track, error) {
	f.seenCookies = append(f.seenCookies, cred.Cookie())
	return f.tracks, f.listErr
}

func (f *fakePlatform) FetchAudio(context.Context, subtitle.VideoRef, *Credential) (io.ReadCloser, error) {
	f.audioCalls.Add(1)
	return io.NopCloser(strings.NewReader("RIFFaudio")), nil
}

type fakeRecognizer struct {
	calls int
	hints []string
	err   error
}

func (f *fakeRecognizer) Transcribe(_ context.Context, audio io.Reader, hint, _ string) ([]synth.Cue, error) {
	f.calls++
	f.hints = append(f.hints, hint)
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(audio)
	if string(data) != "RIFFaudio" {
		return nil, errors.New("audio not replayed")
	}
	conf := 0.8
	return []synth.Cue{{Start: 0, End: 1.2, Text: "识别结果", Confidence: &conf}}, nil
}

func TestAuthoredTrackSkipsRecognition(t *testing.T) {
	platform := &fakePlatform{tracks: []Track{
		{Language: "ai-zh", Cues: []synth.Cue{{Start: 0, End: 1, Text: "机器"}}},
		{Language: "zh-CN", Cues: []synth.Cue{{Start: 0, End: 1, Text: "你好"}}},
	}}
	rec := &fakeRecognizer{}
	strategy := NewStrategy(platform, rec, nil, nil)

	out, err := strategy.Acquire(context.Background(), Request{Input: "BV1xx411c7mD", Languages: []string{"zh-CN"}, Fallback: true})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if rec.calls != 0 || platform.audioCalls.Load() != 0 {
		t.Fatal("recognition must be skipped when an authored track exists")
	}
	if len(out.Tracks) != 1 || out.Tracks[0].Segments[0].Source != subtitle.SourceAuthored {
		t.Fatalf("expected authored segments, got %+v", out.Tracks)
	}
	if out.UsedRecognition || out.NoSubtitles {
		t.Fatalf("unexpected flags: %+v", out)
	}
}

func TestEmptyTrackWithoutFallbackIsNotAnError(t *testing.T) {
	platform := &fakePlatform{tracks: []Track{{Language: "zh-CN"}}}
	strategy := NewStrategy(platform, &fakeRecognizer{}, nil, nil)

	out, err := strategy.Acquire(context.Background(), Request{Input: "BV1xx411c7mD", Languages: []string{"zh-CN"}})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !out.NoSubtitles || out.Note() != NoteNoSubtitles {
		t.Fatalf("expected no-subtitles outcome, got %+v note=%q", out, out.Note())
	}
	if len(out.Missing) != 1 || out.Missing[0] != "zh-CN" {
		t.Fatalf("unexpected missing list: %v", out.Missing)
	}
}

func TestFallbackFetchesAudioOncePerItem(t *testing.T) {
	platform := &fakePlatform{}
	rec := &fakeRecognizer{}
	strategy := NewStrategy(platform, rec, nil, nil)

	out, err := strategy.Acquire(context.Background(), Request{
		Input:        "BV1xx411c7mD",
		Languages:    []string{"zh-CN", "en"},
		Fallback:     true,
		LanguageHint: "yue",
		KeepAudio:    true,
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if platform.audioCalls.Load() != 1 {
		t.Fatalf("expected one audio fetch, got %d", platform.audioCalls.Load())
	}
	if rec.calls != 2 || rec.hints[0] != "yue" || rec.hints[1] != "en" {
		t.Fatalf("unexpected recognizer calls %d hints %v", rec.calls, rec.hints)
	}
	if !out.UsedRecognition || string(out.Audio) != "RIFFaudio" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	seg := out.Tracks[0].Segments[0]
	if seg.Source != subtitle.SourceRecognized || seg.Confidence == nil || *seg.Confidence != 0.8 {
		t.Fatalf("recognized segment mislabeled: %+v", seg)
	}
}

func TestRecognitionFailureIsClassified(t *testing.T) {
	strategy := NewStrategy(&fakePlatform{}, &fakeRecognizer{err: errors.New("model missing")}, nil, nil)
	_, err := strategy.Acquire(context.Background(), Request{Input: "x", Languages: []string{"zh"}, Fallback: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.KindOf(err) != services.KindRecognitionFailure {
		t.Fatalf("expected recognition_failure, got %s (%v)", services.KindOf(err), err)
	}
}

func TestListFailurePropagatesKind(t *testing.T) {
	platform := &fakePlatform{listErr: services.Classify(services.KindAuthRejected, "player", errors.New("-101"))}
	strategy := NewStrategy(platform, nil, nil, nil)
	cred := &Credential{SESSDATA: "s", BiliJCT: "j"}
	_, err := strategy.Acquire(context.Background(), Request{Input: "x", Languages: []string{"zh"}, Credential: cred})
	if services.KindOf(err) != services.KindAuthRejected {
		t.Fatalf("expected auth_rejected, got %v", err)
	}
	if platform.seenCookies[0] != "SESSDATA=s; bili_jct=j" {
		t.Fatalf("credential not forwarded: %q", platform.seenCookies[0])
	}
}

func TestCancellationStopsAtNextCheckpoint(t *testing.T) {
	cause := errors.New("cancelled by user")
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	var calls []string
	gate := GateFunc(func(ctx context.Context, endpoint string, fn func(context.Context) error) error {
		calls = append(calls, endpoint)
		err := fn(ctx)
		if endpoint == EndpointResolve {
			cancel(cause)
		}
		return err
	})
	strategy := NewStrategy(&fakePlatform{}, &fakeRecognizer{}, gate, nil)
	_, err := strategy.Acquire(ctx, Request{Input: "x", Languages: []string{"zh"}, Fallback: true})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cancel cause, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected no calls after cancellation, got %v", calls)
	}
}

func TestProgressIsReported(t *testing.T) {
	platform := &fakePlatform{tracks: []Track{{Language: "zh-CN", Cues: []synth.Cue{{Start: 0, End: 1, Text: "a"}}}}}
	var fractions []float64
	strategy := NewStrategy(platform, nil, nil, nil)
	_, err := strategy.Acquire(context.Background(), Request{
		Input: "x", Languages: []string{"zh-CN"},
		Progress: func(_ string, f float64) { fractions = append(fractions, f) },
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress decreased: %v", fractions)
		}
	}
	if fractions[len(fractions)-1] != 1 {
		t.Fatalf("expected final progress 1, got %v", fractions)
	}
}

func TestCredential(t *testing.T) {
	t.Setenv(EnvSESSDATA, "")
	t.Setenv(EnvBiliJCT, "")
	t.Setenv(EnvBuVID3, "")
	if CredentialFromEnv() != nil {
		t.Fatal("expected nil credential without env")
	}
	var nilCred *Credential
	if !nilCred.Empty() || nilCred.Cookie() != "" || nilCred.String() != "anonymous" {
		t.Fatal("nil credential must behave as anonymous")
	}

	t.Setenv(EnvSESSDATA, "sess")
	t.Setenv(EnvBuVID3, "buv")
	cred := CredentialFromEnv()
	if cred == nil || cred.Cookie() != "SESSDATA=sess; buvid3=buv" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if strings.Contains(cred.String(), "sess") {
		t.Fatal("String must not reveal tokens")
	}
}
