package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilisub/internal/services"
)

const itemColumns = "id, client_id, input, video_id, video_title, video_duration_ms, formats, options_json, callback_url, status, progress, progress_message, result_json, error_kind, error_message, attempts, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              string
		clientID        sql.NullString
		input           string
		videoID         sql.NullString
		videoTitle      sql.NullString
		videoDurationMS int64
		formats         string
		optionsJSON     sql.NullString
		callbackURL     sql.NullString
		statusStr       string
		progress        float64
		progressMessage sql.NullString
		resultJSON      sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		attempts        int
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&id,
		&clientID,
		&input,
		&videoID,
		&videoTitle,
		&videoDurationMS,
		&formats,
		&optionsJSON,
		&callbackURL,
		&statusStr,
		&progress,
		&progressMessage,
		&resultJSON,
		&errorKind,
		&errorMessage,
		&attempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:       id,
		ClientID: clientID.String,
		Input:    input,
		Video: Video{
			ID:       videoID.String,
			Title:    videoTitle.String,
			Duration: time.Duration(videoDurationMS) * time.Millisecond,
		},
		Formats:         splitList(formats),
		CallbackURL:     callbackURL.String,
		Status:          Status(statusStr),
		Progress:        progress,
		ProgressMessage: progressMessage.String,
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &item.Options); err != nil {
			return nil, fmt.Errorf("decode options for %s: %w", id, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", id, err)
		}
		item.Result = &result
	}
	if errorKind.Valid && errorKind.String != "" {
		item.Error = &ItemError{Kind: services.Kind(errorKind.String), Message: errorMessage.String, Attempts: attempts}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Result:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func joinList(values []string) string {
	return strings.Join(values, ",")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
