package artifacts

import (
	"fmt"
	"path/filepath"
	"time"

	"bilisub/internal/fileutil"
	"bilisub/internal/queue"
	"bilisub/internal/subtitle"
)

// VideoInfo is the report form of a resolved video.
type VideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// ErrorInfo is the report form of a task failure.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatsInfo adds the total to subtitle.Stats.
type StatsInfo struct {
	Authored   int `json:"authored"`
	Recognized int `json:"recognized"`
	Total      int `json:"total"`
}

// ItemReport summarizes one task. It never carries credentials.
type ItemReport struct {
	ID              string     `json:"id"`
	Input           string     `json:"input"`
	Video           *VideoInfo `json:"video,omitempty"`
	Status          string     `json:"status"`
	Stats           StatsInfo  `json:"stats"`
	Languages       []string   `json:"languages,omitempty"`
	Files           []string   `json:"files,omitempty"`
	UsedRecognition bool       `json:"used_asr"`
	Note            string     `json:"note,omitempty"`
	Error           *ErrorInfo `json:"error,omitempty"`
	Retries         int        `json:"retries"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Totals aggregates a run.
type Totals struct {
	Total           int       `json:"total"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	Cancelled       int       `json:"cancelled"`
	SuccessRate     float64   `json:"success_rate"`
	RecognitionUsed int       `json:"asr_used"`
	Bilingual       int       `json:"bilingual"`
	Segments        StatsInfo `json:"segments"`
}

// RunReport is written to output_dir/report.json after a batch run.
type RunReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	OutputDir   string       `json:"output_dir"`
	Totals      Totals       `json:"totals"`
	Items       []ItemReport `json:"items"`
}

func statsInfo(s subtitle.Stats) StatsInfo {
	return StatsInfo{Authored: s.Authored, Recognized: s.Recognized, Total: s.Total()}
}

// ItemReportFor builds the report entry for a task snapshot.
func ItemReportFor(item *queue.Item) ItemReport {
	report := ItemReport{
		ID:        item.ID,
		Input:     item.Input,
		Status:    string(item.Status),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if item.Video.ID != "" {
		report.Video = &VideoInfo{
			ID:       item.Video.ID,
			Title:    item.Video.Title,
			Duration: item.Video.Duration.Seconds(),
		}
	}
	if res := item.Result; res != nil {
		report.Stats = statsInfo(res.Stats)
		report.Languages = res.Languages
		report.Files = res.Files
		report.UsedRecognition = res.UsedRecognition
		report.Note = res.Note
	}
	if e := item.Error; e != nil {
		report.Error = &ErrorInfo{Kind: string(e.Kind), Message: e.Message}
		if e.Attempts > 1 {
			report.Retries = e.Attempts - 1
		}
	}
	return report
}

// BuildRunReport aggregates task snapshots in the given order.
func BuildRunReport(outputDir string, items []*queue.Item, now time.Time) RunReport {
	report := RunReport{
		GeneratedAt: now.UTC(),
		OutputDir:   outputDir,
		Items:       make([]ItemReport, 0, len(items)),
	}
	var segments subtitle.Stats
	for _, item := range items {
		entry := ItemReportFor(item)
		report.Items = append(report.Items, entry)
		report.Totals.Total++
		switch item.Status {
		case queue.StatusCompleted:
			report.Totals.Completed++
		case queue.StatusFailed:
			report.Totals.Failed++
		case queue.StatusCancelled:
			report.Totals.Cancelled++
		}
		if item.Result != nil {
			segments = segments.Add(item.Result.Stats)
			if item.Result.UsedRecognition {
				report.Totals.RecognitionUsed++
			}
			if len(item.Result.Languages) > 1 {
				report.Totals.Bilingual++
			}
		}
	}
	report.Totals.Segments = statsInfo(segments)
	if report.Totals.Total > 0 {
		report.Totals.SuccessRate = float64(report.Totals.Completed) / float64(report.Totals.Total)
	}
	return report
}

// WriteRunReport writes report.json at the output root.
func (l *Layout) WriteRunReport(report RunReport) (string, error) {
	path := filepath.Join(l.root, ReportName)
	if err := fileutil.WriteJSONAtomic(path, report); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	return path, nil
}
