package queue

import (
	"time"

	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string to a Status.
func ParseStatus(value string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether the task is waiting or running.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Video is the resolved video a task refers to. Empty until resolution.
type Video struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
}

// Options are the per-task processing choices.
type Options struct {
	Languages      []string `json:"languages,omitempty"`
	UseRecognition bool     `json:"use_asr"`
	Model          string   `json:"asr_model,omitempty"`
	LanguageHint   string   `json:"asr_lang,omitempty"`
	SaveAudio      bool     `json:"save_audio,omitempty"`
}

// Result describes the artifacts of a completed task.
type Result struct {
	Dir             string         `json:"dir"`
	Files           []string       `json:"files"`
	Stats           subtitle.Stats `json:"stats"`
	Languages       []string       `json:"languages,omitempty"`
	NoSubtitles     bool           `json:"no_subtitles,omitempty"`
	Note            string         `json:"note,omitempty"`
	UsedRecognition bool           `json:"used_recognition,omitempty"`
}

// ItemError is the terminal failure of a task. Once set it never changes.
type ItemError struct {
	Kind     services.Kind `json:"kind"`
	Message  string        `json:"message"`
	Attempts int           `json:"attempts"`
}

// Item is one persisted task.
type Item struct {
	ID              string
	ClientID        string
	Input           string
	Video           Video
	Formats         []string
	Options         Options
	CallbackURL     string
	Status          Status
	Progress        float64
	ProgressMessage string
	Result          *Result
	Error           *ItemError
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewItem holds the caller-supplied fields of a submission.
type NewItem struct {
	ClientID string
	// QuotaKey is charged against the quota gate instead of ClientID when
	// set, for callers without a client identity.
	QuotaKey    string
	Input       string
	Formats     []string
	Options     Options
	CallbackURL string
}

// Filter narrows List results.
type Filter struct {
	Statuses []Status
	ClientID string
	Limit    int
	// Oldest lists in creation order instead of newest first.
	Oldest bool
}

// Stats counts tasks per status.
type Stats struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
}
