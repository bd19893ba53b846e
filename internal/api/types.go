package api

import (
	"bilisub/internal/acquire"
	"bilisub/internal/queue"
	"bilisub/internal/subtitle"
	"bilisub/internal/workflow"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	URL           string              `json:"url"`
	Credentials   *acquire.Credential `json:"credentials,omitempty"`
	OutputFormats []string            `json:"output_formats,omitempty"`
	// UseASR defaults to the configured recognition setting when omitted.
	UseASR      *bool    `json:"use_asr,omitempty"`
	ASRModel    string   `json:"asr_model,omitempty"`
	ASRLang     string   `json:"asr_lang,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	SaveAudio   bool     `json:"save_audio,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// VideoInfo describes the resolved video.
type VideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// TaskError is the terminal failure of a task.
type TaskError struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Task is the status view of one task.
type Task struct {
	TaskID        string     `json:"task_id"`
	ClientID      string     `json:"client_id,omitempty"`
	Status        string     `json:"status"`
	URL           string     `json:"url"`
	OutputFormats []string   `json:"output_formats"`
	Progress      float64    `json:"progress"`
	Message       string     `json:"message,omitempty"`
	VideoInfo     *VideoInfo `json:"video_info,omitempty"`
	Error         *TaskError `json:"error,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
	UpdatedAt     string     `json:"updated_at,omitempty"`
}

// TaskList is returned by GET /api/tasks.
type TaskList struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

// FileLink is one downloadable artifact.
type FileLink struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// TaskResult is returned by GET /api/tasks/{id}/result.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	VideoInfo   *VideoInfo     `json:"video_info,omitempty"`
	Files       []FileLink     `json:"files"`
	Stats       subtitle.Stats `json:"stats"`
	Languages   []string       `json:"languages,omitempty"`
	NoSubtitles bool           `json:"no_subtitles"`
	UsedASR     bool           `json:"used_asr"`
	Note        string         `json:"note,omitempty"`
}

// RunnerInfo reports runner occupancy.
type RunnerInfo struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Limit   int `json:"limit"`
}

// Stats is returned by GET /api/stats.
type Stats struct {
	Running   bool              `json:"running"`
	LastError string            `json:"last_error,omitempty"`
	LastTask  *Task             `json:"last_task,omitempty"`
	Queue     queue.Stats       `json:"queue"`
	Runner    RunnerInfo        `json:"runner"`
	Quota     queue.QuotaStatus `json:"quota"`
	Health    []workflow.Health `json:"health"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
