package api

import (
	"time"

	"bilisub/internal/queue"
	"bilisub/internal/workflow"
)

const dateTimeFormat = time.RFC3339

// FromItem converts a queue record to its API representation.
func FromItem(item *queue.Item) Task {
	if item == nil {
		return Task{}
	}
	dto := Task{
		TaskID:        item.ID,
		ClientID:      item.ClientID,
		Status:        string(item.Status),
		URL:           item.Input,
		OutputFormats: append([]string{}, item.Formats...),
		Progress:      item.Progress,
		Message:       item.ProgressMessage,
		VideoInfo:     videoInfo(item.Video),
	}
	if item.Error != nil {
		dto.Error = &TaskError{
			Kind:     string(item.Error.Kind),
			Message:  item.Error.Message,
			Attempts: item.Error.Attempts,
		}
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

func videoInfo(v queue.Video) *VideoInfo {
	if v.ID == "" {
		return nil
	}
	return &VideoInfo{ID: v.ID, Title: v.Title, Duration: v.Duration.Seconds()}
}

// FromItems converts a listing.
func FromItems(items []*queue.Item) TaskList {
	list := TaskList{Tasks: make([]Task, 0, len(items)), Total: len(items)}
	for _, item := range items {
		list.Tasks = append(list.Tasks, FromItem(item))
	}
	return list
}

// FromStatusSummary converts the workflow status plus quota windows.
func FromStatusSummary(summary workflow.StatusSummary, quota queue.QuotaStatus) Stats {
	stats := Stats{
		Running:   summary.Running,
		LastError: summary.LastError,
		Queue:     summary.QueueStats,
		Runner: RunnerInfo{
			Queued:  len(summary.Runner.Queued),
			Running: len(summary.Runner.Running),
			Limit:   summary.Limit,
		},
		Quota:  quota,
		Health: append([]workflow.Health{}, summary.Health...),
	}
	if summary.LastItem != nil {
		last := FromItem(summary.LastItem)
		stats.LastTask = &last
	}
	if stats.Queue.ByStatus == nil {
		stats.Queue.ByStatus = map[queue.Status]int{}
	}
	return stats
}
