package artifacts

import (
	"os"
	"path/filepath"
	"time"

	"bilisub/internal/logging"
)

// CleanupResult lists what a staging sweep removed and what it could not.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStaging removes staging directories not in keep. The daemon calls it
// at startup, before any task runs, to drop output abandoned by a crash.
func (l *Layout) CleanStaging(keep map[string]struct{}) CleanupResult {
	var result CleanupResult
	root := l.StagingRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if _, ok := keep[entry.Name()]; ok {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		age := time.Duration(0)
		if info, err := entry.Info(); err == nil {
			age = time.Since(info.ModTime())
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(l.logger, "failed to remove abandoned staging directory", "staging_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check output_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		l.logger.Info("removed abandoned staging directory",
			logging.String("path", dirPath),
			logging.Duration("age", age),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
