package artifacts

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"bilisub/internal/logging"
	"bilisub/internal/queue"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

func TestBuildRunReport(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []*queue.Item{
		{
			ID:     "a",
			Status: queue.StatusCompleted,
			Video:  queue.Video{ID: "BV1xx411c7mD", Title: "demo", Duration: 90 * time.Second},
			Result: &queue.Result{
				Files:     []string{"demo.srt"},
				Stats:     subtitle.Stats{Authored: 4},
				Languages: []string{"zh-CN", "en"},
			},
		},
		{
			ID:     "b",
			Status: queue.StatusCompleted,
			Result: &queue.Result{Stats: subtitle.Stats{Recognized: 6}, UsedRecognition: true, Languages: []string{"zh-CN"}},
		},
		{
			ID:     "c",
			Status: queue.StatusFailed,
			Error:  &queue.ItemError{Kind: services.KindTransientNetwork, Message: "reset", Attempts: 5},
		},
		{ID: "d", Status: queue.StatusCancelled},
	}

	report := BuildRunReport("/out", items, now)
	totals := report.Totals
	if totals.Total != 4 || totals.Completed != 2 || totals.Failed != 1 || totals.Cancelled != 1 {
		t.Fatalf("unexpected totals: %#v", totals)
	}
	if totals.SuccessRate != 0.5 || totals.RecognitionUsed != 1 || totals.Bilingual != 1 {
		t.Fatalf("unexpected rates: %#v", totals)
	}
	if totals.Segments.Total != 10 {
		t.Fatalf("segment total = %d", totals.Segments.Total)
	}
	if report.Items[0].Video == nil || report.Items[0].Video.Duration != 90 {
		t.Fatalf("video not reported: %#v", report.Items[0].Video)
	}
	failed := report.Items[2]
	if failed.Error == nil || failed.Error.Kind != "transient_network" || failed.Retries != 4 {
		t.Fatalf("unexpected failure entry: %#v", failed)
	}
}

func TestWriteRunReport(t *testing.T) {
	layout := NewLayout(t.TempDir(), logging.NewNop())
	path, err := layout.WriteRunReport(BuildRunReport(layout.Root(), nil, time.Now()))
	if err != nil {
		t.Fatalf("WriteRunReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded["totals"]; !ok {
		t.Fatalf("totals missing: %s", data)
	}
}
